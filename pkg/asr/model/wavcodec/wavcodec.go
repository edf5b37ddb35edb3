// Package wavcodec renders float32 PCM into a minimal 16-bit mono WAV
// container, the format genx's OpenAIGenerator.convUserMessage already
// sends as an InputAudioContentPart (MIME "wav"). Hosted-model backends
// (genaimodel, openaimodel) use it to hand their buffered audio to a
// multimodal chat completion endpoint; there is no other consumer, so a
// minimal canonical-form writer is all that's needed here rather than a
// general-purpose WAV library.
package wavcodec

import (
	"bytes"
	"encoding/binary"
)

// Encode renders mono float32 samples at sampleRate as a canonical 16-bit
// PCM WAV file.
func Encode(samples []float32, sampleRate int) []byte {
	dataLen := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	buf.WriteString("RIFF")
	writeUint32(buf, uint32(36+dataLen))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	writeUint32(buf, 16)
	writeUint16(buf, 1) // PCM
	writeUint16(buf, 1) // mono
	writeUint32(buf, uint32(sampleRate))
	writeUint32(buf, uint32(sampleRate*2)) // byte rate
	writeUint16(buf, 2)                    // block align
	writeUint16(buf, 16)                   // bits per sample

	buf.WriteString("data")
	writeUint32(buf, uint32(dataLen))
	for _, s := range samples {
		v := int16(clamp(s) * 32767.0)
		writeUint16(buf, uint16(v))
	}

	return buf.Bytes()
}

func clamp(s float32) float32 {
	if s > 1.0 {
		return 1.0
	}
	if s < -1.0 {
		return -1.0
	}
	return s
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}
