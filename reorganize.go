package radcap

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch means a sample buffer's length does not match the
// declared capture geometry.
var ErrShapeMismatch = errors.New("sample count does not match geometry")

// IQTensor holds reorganized complex samples, indexed as
// (frame, chirp, receiver, sample).
type IQTensor struct {
	Frames          int
	ChirpsPerFrame  int
	NumRx           int
	SamplesPerChirp int
	Data            []complex128 // row-major in the index order above
}

// At returns the IQ value for one (frame, chirp, receiver, sample).
func (t *IQTensor) At(frame, chirp, rx, sample int) complex128 {
	idx := ((frame*t.ChirpsPerFrame+chirp)*t.NumRx+rx)*t.SamplesPerChirp + sample
	return t.Data[idx]
}

// ChirpMatrix returns one chirp as a receivers-by-samples complex matrix,
// the shape the range/Doppler processing stages consume.
func (t *IQTensor) ChirpMatrix(frame, chirp int) *mat.CDense {
	start := (frame*t.ChirpsPerFrame + chirp) * t.NumRx * t.SamplesPerChirp
	end := start + t.NumRx*t.SamplesPerChirp
	return mat.NewCDense(t.NumRx, t.SamplesPerChirp, t.Data[start:end])
}

// Reorganize converts a flat buffer of raw ADC words into an IQ tensor.
// It is a pure function of its inputs.
//
// The board interleaves samples as (frame, chirp, sample, receiver, IQ
// component), with the raw uint16 words carrying two's-complement int16
// values. Component 0 is the real part and component 1 the imaginary part;
// iqComponents must be 2 to form complex values. The output axes are
// permuted to (frame, chirp, receiver, sample).
func Reorganize(samples []uint16, frames, chirpsPerFrame, numRx, samplesPerChirp, iqComponents int) (*IQTensor, error) {
	if iqComponents != 2 {
		return nil, fmt.Errorf("%w: need 2 IQ components to form complex samples, have %d",
			ErrShapeMismatch, iqComponents)
	}
	want := frames * chirpsPerFrame * samplesPerChirp * iqComponents * numRx
	if len(samples) != want {
		return nil, fmt.Errorf("%w: have %d samples, geometry needs %d", ErrShapeMismatch, len(samples), want)
	}

	t := &IQTensor{
		Frames:          frames,
		ChirpsPerFrame:  chirpsPerFrame,
		NumRx:           numRx,
		SamplesPerChirp: samplesPerChirp,
		Data:            make([]complex128, frames*chirpsPerFrame*numRx*samplesPerChirp),
	}
	in := 0
	for f := 0; f < frames; f++ {
		for c := 0; c < chirpsPerFrame; c++ {
			for s := 0; s < samplesPerChirp; s++ {
				for r := 0; r < numRx; r++ {
					re := float64(int16(samples[in]))
					im := float64(int16(samples[in+1]))
					in += 2
					out := ((f*chirpsPerFrame+c)*numRx+r)*samplesPerChirp + s
					t.Data[out] = complex(re, im)
				}
			}
		}
	}
	return t, nil
}
