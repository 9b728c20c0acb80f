package analysis

import (
	"github.com/Silencehuliang/spectrometer-gui/pkg/spectrum"
)

// DetectPeaks 检测光谱数据中的峰值
//
// 候选条件：采样点严格大于左右相邻点，且严格大于 thresholdRatio 乘以全谱最大强度。
// 首末采样点不作为候选。
// 半高宽：从峰位向两侧行走，停在第一个不高于半峰值的采样点，
// 取两侧停止点之间的波长跨度。
// 空数据或单调数据返回空结果，不报错
func DetectPeaks(data *spectrum.SpectrumData, thresholdRatio float64) []spectrum.PeakData {
	intensities := data.Intensities
	wavelengths := data.Wavelengths

	n := len(intensities)
	if n == 0 || len(wavelengths) != n {
		return nil
	}

	maxIntensity := intensities[0]
	for _, v := range intensities[1:] {
		if v > maxIntensity {
			maxIntensity = v
		}
	}
	threshold := thresholdRatio * maxIntensity

	var peaks []spectrum.PeakData
	for i := 1; i < n-1; i++ {
		if intensities[i] <= intensities[i-1] ||
			intensities[i] <= intensities[i+1] ||
			intensities[i] <= threshold {
			continue
		}

		halfMax := intensities[i] / 2
		left, right := i, i
		for left > 0 && intensities[left] > halfMax {
			left--
		}
		for right < n-1 && intensities[right] > halfMax {
			right++
		}

		peaks = append(peaks, spectrum.PeakData{
			Wavelength: wavelengths[i],
			Intensity:  intensities[i],
			FWHM:       wavelengths[right] - wavelengths[left],
		})
	}
	return peaks
}
