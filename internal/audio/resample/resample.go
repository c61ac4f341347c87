// Package resample converts PCM between sample rates ahead of
// VAD/calibration math (which is rate-agnostic but most comfortable
// at the transport's native 48kHz) and ahead of handing audio to the
// transcription client (which commonly expects 16kHz). Takes a plain
// from-rate/to-rate pair instead of an audio-config struct since this
// module carries no codec/channel-layout negotiation of its own.
package resample

import "fmt"

// PCM linearly interpolates mono int16 samples from one sample rate
// to another. A third-party resampling kernel was considered but
// could not be grounded against a confirmed API surface without
// network access to the module, so this implements the interpolation
// locally (see DESIGN.md).
func PCM(pcm []int16, fromRate, toRate int) ([]int16, error) {
	if fromRate <= 0 || toRate <= 0 {
		return nil, fmt.Errorf("resample: invalid rate pair %d -> %d", fromRate, toRate)
	}
	if fromRate == toRate || len(pcm) == 0 {
		return pcm, nil
	}

	ratio := float64(toRate) / float64(fromRate)
	outLen := int(float64(len(pcm)) * ratio)
	if outLen < 1 {
		return nil, nil
	}

	out := make([]int16, outLen)
	step := float64(len(pcm)-1) / float64(outLen-1)
	if outLen == 1 {
		step = 0
	}
	for i := 0; i < outLen; i++ {
		pos := float64(i) * step
		lo := int(pos)
		hi := lo + 1
		if hi >= len(pcm) {
			out[i] = pcm[lo]
			continue
		}
		frac := pos - float64(lo)
		out[i] = int16(float64(pcm[lo])*(1-frac) + float64(pcm[hi])*frac)
	}
	return out, nil
}

// Stereo resamples interleaved stereo PCM by de-interleaving,
// resampling each channel independently, and re-interleaving.
func Stereo(pcm []int16, fromRate, toRate int) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("resample: odd-length stereo buffer")
	}
	left := make([]int16, len(pcm)/2)
	right := make([]int16, len(pcm)/2)
	for i := 0; i < len(pcm)/2; i++ {
		left[i] = pcm[2*i]
		right[i] = pcm[2*i+1]
	}

	left, err := PCM(left, fromRate, toRate)
	if err != nil {
		return nil, err
	}
	right, err = PCM(right, fromRate, toRate)
	if err != nil {
		return nil, err
	}

	out := make([]int16, 0, len(left)+len(right))
	for i := range left {
		out = append(out, left[i], right[i])
	}
	return out, nil
}
