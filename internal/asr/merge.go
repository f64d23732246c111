package asr

// DiarizationSegment is a time range attributed to one speaker, as emitted by
// a diarization backend.
type DiarizationSegment struct {
	Speaker string  `json:"speaker"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Default merge parameters used by the worker pipeline.
const (
	DefaultMergeGap    = 0.4 // 結合する最大無音ギャップ（秒）
	DefaultMergeMinDur = 1.2 // これ未満の断片は前のセグメントに吸収（秒）
)

// MergeSegments coalesces raw diarization segments into fewer, stable ones.
//
// Diarization output tends to be fragmented, which multiplies transcription
// calls and chops sentences apart. Two passes over the start-sorted input:
//
//  1. Merge consecutive segments of the same speaker when the silent gap
//     between them is at most gap seconds.
//  2. Absorb segments shorter than minDur into the previous output segment
//     (the short segment's speaker label is discarded).
//
// Deliberately simple; overlapping speech is not handled.
func MergeSegments(segments []DiarizationSegment, gap, minDur float64) []DiarizationSegment {
	if len(segments) == 0 {
		return []DiarizationSegment{}
	}

	merged := []DiarizationSegment{segments[0]}
	for _, s := range segments[1:] {
		last := &merged[len(merged)-1]
		if s.Speaker == last.Speaker && s.Start-last.End <= gap {
			if s.End > last.End {
				last.End = s.End
			}
		} else {
			merged = append(merged, s)
		}
	}

	fixed := make([]DiarizationSegment, 0, len(merged))
	for _, s := range merged {
		if len(fixed) > 0 && s.End-s.Start < minDur {
			fixed[len(fixed)-1].End = s.End
		} else {
			fixed = append(fixed, s)
		}
	}
	return fixed
}
