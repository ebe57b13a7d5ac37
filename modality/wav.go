package modality

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	wavPCM        = 1
	wavFloat      = 3
	wavExtensible = 0xFFFE
)

// DecodeWAV decodes a RIFF/WAVE PCM buffer into a mono waveform in [-1,1].
// Supported encodings: 8/16/24/32-bit integer PCM and 32/64-bit float.
func DecodeWAV(data []byte) (Waveform, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Waveform{}, errors.New("wav: not a RIFF/WAVE buffer")
	}
	var (
		format, channels, bits uint16
		rate                   uint32
		haveFmt                bool
		pcm                    []byte
	)
	for off := 12; off+8 <= len(data); {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(data) {
			if id != "data" {
				return Waveform{}, fmt.Errorf("wav: chunk %q truncated", id)
			}
			size = len(data) - body
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return Waveform{}, errors.New("wav: short fmt chunk")
			}
			format = binary.LittleEndian.Uint16(data[body:])
			channels = binary.LittleEndian.Uint16(data[body+2:])
			rate = binary.LittleEndian.Uint32(data[body+4:])
			bits = binary.LittleEndian.Uint16(data[body+14:])
			if format == wavExtensible && size >= 26 {
				format = binary.LittleEndian.Uint16(data[body+24:])
			}
			haveFmt = true
		case "data":
			pcm = data[body : body+size]
		}
		off = body + size + size%2
	}
	if !haveFmt {
		return Waveform{}, errors.New("wav: missing fmt chunk")
	}
	if channels == 0 || rate == 0 {
		return Waveform{}, fmt.Errorf("wav: invalid format (channels=%d rate=%d)", channels, rate)
	}
	if rate < MinSampleRate || rate > MaxSampleRate {
		return Waveform{}, fmt.Errorf("wav: sample rate %d outside [%d, %d]", rate, MinSampleRate, MaxSampleRate)
	}
	width := int(bits) / 8
	if bits%8 != 0 || width == 0 {
		return Waveform{}, fmt.Errorf("wav: unsupported bit depth %d", bits)
	}
	decode, err := sampleDecoder(format, bits)
	if err != nil {
		return Waveform{}, err
	}
	frame := width * int(channels)
	n := len(pcm) / frame
	if n == 0 {
		return Waveform{}, errors.New("wav: no samples")
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := 0.0
		for c := 0; c < int(channels); c++ {
			p := i*frame + c*width
			sum += decode(pcm[p : p+width])
		}
		out[i] = sum / float64(channels)
	}
	return Waveform{Samples: out, SampleRate: int(rate)}, nil
}

func sampleDecoder(format, bits uint16) (func([]byte) float64, error) {
	switch {
	case format == wavPCM && bits == 8:
		return func(b []byte) float64 { return (float64(b[0]) - 128) / 128 }, nil
	case format == wavPCM && bits == 16:
		return func(b []byte) float64 { return float64(int16(binary.LittleEndian.Uint16(b))) / 32768 }, nil
	case format == wavPCM && bits == 24:
		return func(b []byte) float64 {
			v := int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
			return float64(v) / 8388608
		}, nil
	case format == wavPCM && bits == 32:
		return func(b []byte) float64 { return float64(int32(binary.LittleEndian.Uint32(b))) / 2147483648 }, nil
	case format == wavFloat && bits == 32:
		return func(b []byte) float64 { return clampUnit(float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))) }, nil
	case format == wavFloat && bits == 64:
		return func(b []byte) float64 { return clampUnit(math.Float64frombits(binary.LittleEndian.Uint64(b))) }, nil
	}
	return nil, fmt.Errorf("wav: unsupported encoding format=%d bits=%d", format, bits)
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}

// EncodeWAV writes a mono 16-bit PCM WAV. Used to build fixtures and by
// callers that capture raw samples.
func EncodeWAV(w Waveform) []byte {
	n := len(w.Samples)
	buf := make([]byte, 44+2*n)
	copy(buf[0:], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:], uint32(36+2*n))
	copy(buf[8:], "WAVEfmt ")
	binary.LittleEndian.PutUint32(buf[16:], 16)
	binary.LittleEndian.PutUint16(buf[20:], wavPCM)
	binary.LittleEndian.PutUint16(buf[22:], 1)
	binary.LittleEndian.PutUint32(buf[24:], uint32(w.SampleRate))
	binary.LittleEndian.PutUint32(buf[28:], uint32(w.SampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:], 2)
	binary.LittleEndian.PutUint16(buf[34:], 16)
	copy(buf[36:], "data")
	binary.LittleEndian.PutUint32(buf[40:], uint32(2*n))
	for i, s := range w.Samples {
		v := int16(math.Round(clampUnit(s) * 32767))
		binary.LittleEndian.PutUint16(buf[44+2*i:], uint16(v))
	}
	return buf
}
