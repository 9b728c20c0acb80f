package spectrum

import "time"

// SpectrumData 光谱数据结构：波长与强度等长
type SpectrumData struct {
	Wavelengths []float64 `json:"wavelengths"`
	Intensities []float64 `json:"intensities"`
	Timestamp   time.Time `json:"timestamp"`
}

// Len 采样点数
func (s *SpectrumData) Len() int {
	return len(s.Wavelengths)
}

// PeakData 峰值数据结构
type PeakData struct {
	Wavelength float64 `json:"wavelength"`
	Intensity  float64 `json:"intensity"`
	FWHM       float64 `json:"fwhm"` // 半高宽，单位与波长一致
}
