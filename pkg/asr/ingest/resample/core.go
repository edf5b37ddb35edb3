package resample

import (
	"fmt"
	"io"
	"sync"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Format describes the PCM format on one side of a resample: sample rate
// and channel count. Every Source in this package converts from an
// arbitrary srcFmt down to TargetFormat.
type Format struct {
	// SampleRate is the sample rate in Hz (e.g., 44100, 48000).
	SampleRate int

	// Stereo indicates stereo (2 channels) if true, mono (1 channel) if false.
	Stereo bool
}

func (f Format) channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

func (f Format) sampleBytes() int {
	if f.Stereo {
		return 4
	}
	return 2
}

// rawResampler wraps an io.Reader and resamples 16-bit PCM audio from
// srcFmt to dstFmt, via github.com/tphakala/go-audio-resampling — a pure
// Go resampler, adapted from the teacher's pkg/audio/resampler.Soxr
// (itself one of two colliding implementations the teacher carried under
// the same `!js` build constraint; the cgo/libsoxr-backed one is dropped
// here, see DESIGN.md).
type rawResampler interface {
	io.ReadCloser
	CloseWithError(error) error
}

// pureResampler implements rawResampler without CGO/FFI dependencies.
type pureResampler struct {
	srcFmt Format
	src    io.Reader

	dstFmt  Format
	readBuf []byte

	mu            sync.Mutex
	closeErr      error
	resampler     resampling.Resampler
	leftover      []byte
	needsResample bool
}

// newRawResampler creates a rawResampler converting from srcFmt to dstFmt.
// Both formats must use 16-bit signed integer samples.
func newRawResampler(src io.Reader, srcFmt, dstFmt Format) (rawResampler, error) {
	needsResample := srcFmt.SampleRate != dstFmt.SampleRate

	var resampler resampling.Resampler
	if needsResample {
		config := &resampling.Config{
			InputRate:  float64(srcFmt.SampleRate),
			OutputRate: float64(dstFmt.SampleRate),
			Channels:   dstFmt.channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		}
		var err error
		resampler, err = resampling.New(config)
		if err != nil {
			return nil, fmt.Errorf("asr/ingest/resample: create resampler: %w", err)
		}
	}

	rs := &pureResampler{
		srcFmt: srcFmt,
		src:    newSampleReader(src, srcFmt.sampleBytes()),

		dstFmt: dstFmt,

		resampler:     resampler,
		needsResample: needsResample,
	}

	return rs, nil
}

// Read copies resampled audio data into p. It returns the number of bytes
// written and any encountered error. This method is not safe for concurrent
// use.
func (r *pureResampler) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	if len(p) < r.dstFmt.sampleBytes() {
		return 0, io.ErrShortBuffer
	}

	p = p[:len(p)/r.dstFmt.sampleBytes()*r.dstFmt.sampleBytes()]

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.leftover) > 0 {
		n := copy(p, r.leftover)
		r.leftover = r.leftover[n:]
		return n, nil
	}

	if r.closeErr != nil {
		return 0, r.closeErr
	}

	return r.readAndProcess(p)
}

// readAndProcess reads from source and processes through resampler.
func (r *pureResampler) readAndProcess(p []byte) (int, error) {
	if !r.needsResample {
		return r.readPassthrough(p)
	}

	ratio := float64(r.srcFmt.SampleRate) / float64(r.dstFmt.SampleRate)
	srcBytesNeeded := int(float64(len(p))*ratio) + r.srcFmt.sampleBytes()*4

	if cap(r.readBuf) < srcBytesNeeded {
		r.readBuf = make([]byte, srcBytesNeeded)
	}

	bytesRead, readErr := r.readSourceWithChannelConv(srcBytesNeeded)
	if bytesRead == 0 {
		if readErr != nil {
			return 0, readErr
		}
		return 0, io.EOF
	}

	numChannels := r.dstFmt.channels()
	numFrames := bytesRead / (2 * numChannels)
	input := make([]float64, numFrames*numChannels)

	for i := 0; i < numFrames*numChannels; i++ {
		sample := int16(r.readBuf[i*2]) | int16(r.readBuf[i*2+1])<<8
		input[i] = float64(sample) / 32768.0
	}

	output, err := r.resampler.Process(input)
	if err != nil {
		return 0, fmt.Errorf("asr/ingest/resample: process: %w", err)
	}

	if len(output) == 0 {
		if readErr != nil {
			return 0, readErr
		}
		return 0, nil
	}

	outputBytes := make([]byte, len(output)*2)
	for i, s := range output {
		sample := int16(s * 32767.0)
		if s > 1.0 {
			sample = 32767
		} else if s < -1.0 {
			sample = -32768
		}
		outputBytes[i*2] = byte(sample)
		outputBytes[i*2+1] = byte(sample >> 8)
	}

	outputLen := (len(outputBytes) / r.dstFmt.sampleBytes()) * r.dstFmt.sampleBytes()
	outputBytes = outputBytes[:outputLen]

	n := copy(p, outputBytes)
	if len(outputBytes) > n {
		r.leftover = append(r.leftover, outputBytes[n:]...)
	}

	return n, readErr
}

// readPassthrough reads without sample rate conversion.
func (r *pureResampler) readPassthrough(p []byte) (int, error) {
	n, err := r.readSourceWithChannelConv(len(p))
	if n == 0 {
		return 0, err
	}
	copy(p, r.readBuf[:n])
	return n, err
}

// readSourceWithChannelConv reads from source and handles channel conversion.
func (r *pureResampler) readSourceWithChannelConv(dstLen int) (int, error) {
	if cap(r.readBuf) < dstLen {
		r.readBuf = make([]byte, dstLen)
	}

	if r.srcFmt.Stereo && !r.dstFmt.Stereo {
		srcLen := dstLen * 2
		if cap(r.readBuf) < srcLen {
			r.readBuf = make([]byte, srcLen)
		}
		rn, err := r.src.Read(r.readBuf[:srcLen])
		if rn == 0 {
			return 0, err
		}
		return stereoToMono(r.readBuf[:rn]), err
	}

	if r.srcFmt.Stereo == r.dstFmt.Stereo {
		return r.src.Read(r.readBuf[:dstLen])
	}

	rn, err := r.src.Read(r.readBuf[:dstLen/2])
	if rn == 0 {
		return 0, err
	}
	return monoToStereo(r.readBuf[:rn*2]), err
}

// Close releases resources and marks the resampler as closed.
// Subsequent Read calls will return io.ErrClosedPipe.
func (r *pureResampler) Close() error {
	return r.CloseWithError(fmt.Errorf("asr/ingest/resample: %w", io.ErrClosedPipe))
}

// CloseWithError releases resources with a custom error. Subsequent
// Read calls will return the provided error.
func (r *pureResampler) CloseWithError(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr == nil {
		r.closeErr = err
	}
	r.resampler = nil
	return nil
}

// stereoToMono converts stereo 16-bit samples to mono in-place by averaging L
// and R channels.
func stereoToMono(b []byte) int {
	numFrames := len(b) / 4
	for i := range numFrames {
		j := i * 4
		k := i * 2
		l := int16(b[j]) | int16(b[j+1])<<8
		r := int16(b[j+2]) | int16(b[j+3])<<8
		m := int16((int32(l) + int32(r)) / 2)
		b[k] = byte(m)
		b[k+1] = byte(m >> 8)
	}
	return numFrames * 2
}

// monoToStereo converts mono 16-bit samples to stereo in-place by duplicating
// each sample.
func monoToStereo(b []byte) int {
	stereoLen := len(b)
	numSamples := stereoLen / 4
	for i := numSamples - 1; i >= 0; i-- {
		s0, s1 := b[i*2], b[i*2+1]
		j := i * 4
		b[j], b[j+1] = s0, s1
		b[j+2], b[j+3] = s0, s1
	}
	return stereoLen
}

// sampleReader wraps an io.Reader and ensures each Read returns a multiple of
// sampleSize bytes. It buffers partial data internally until a complete sample
// can be returned.
type sampleReader struct {
	buffer     []byte
	buffered   int
	sampleSize int
	r          io.Reader
}

// newSampleReader creates a sampleReader that returns data in multiples of
// sampleSize bytes.
func newSampleReader(r io.Reader, sampleSize int) *sampleReader {
	return &sampleReader{
		buffer:     make([]byte, sampleSize-1),
		buffered:   0,
		sampleSize: sampleSize,
		r:          r,
	}
}

// Read reads data into p, returning a 0 or a multiple of sampleSize bytes.
// Returns io.ErrShortBuffer if len(p) < sampleSize. On EOF, may return
// remaining data that is not aligned to sampleSize.
func (sr *sampleReader) Read(p []byte) (n int, err error) {
	if len(p) < sr.sampleSize {
		return 0, io.ErrShortBuffer
	}

	p = p[:len(p)/sr.sampleSize*sr.sampleSize]
	if sr.buffered > 0 {
		n = copy(p, sr.buffer[:sr.buffered])
		sr.buffered = 0
	}

	rn, err := sr.r.Read(p[n:])
	n += rn
	if err != nil {
		if n%sr.sampleSize != 0 && err == io.EOF {
			return n, io.ErrUnexpectedEOF
		}
		return n, err
	}
	if mod := n % sr.sampleSize; mod != 0 {
		n -= mod
		copy(sr.buffer[:mod], p[n:n+mod])
		sr.buffered = mod
	}
	return n, nil
}
