package storage

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func dataURL(mime string, raw []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

func TestDecodeAvatarPayload(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nrest-of-image")
	jpeg := []byte("\xff\xd8\xffrest-of-image")
	webp := []byte("RIFFxxxxWEBPrest")

	tests := []struct {
		name        string
		payload     string
		wantType    string
		wantErr     error
		wantPayload []byte
	}{
		{"png", dataURL("image/png", png), "image/png", nil, png},
		{"jpeg", dataURL("image/jpeg", jpeg), "image/jpeg", nil, jpeg},
		{"webp", dataURL("image/webp", webp), "image/webp", nil, webp},
		{"declared type is ignored, bytes win", dataURL("image/jpeg", png), "image/png", nil, png},
		{"missing data prefix", base64.StdEncoding.EncodeToString(png), "", ErrInvalidImage, nil},
		{"not base64", "data:image/png;base64,!!!", "", ErrInvalidImage, nil},
		{"unrecognized magic", dataURL("image/png", []byte("GIF89a")), "", ErrInvalidImage, nil},
		{"non-image scheme", "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte("<html>")), "", ErrInvalidImage, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, contentType, err := DecodeAvatarPayload(tt.payload, 1<<20)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if contentType != tt.wantType {
				t.Errorf("contentType = %q, want %q", contentType, tt.wantType)
			}
			if tt.wantPayload != nil && !bytes.Equal(data, tt.wantPayload) {
				t.Errorf("decoded bytes differ")
			}
		})
	}
}

func TestDecodeAvatarPayloadSizeLimit(t *testing.T) {
	big := append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0xAA}, 64)...)

	if _, _, err := DecodeAvatarPayload(dataURL("image/png", big), int64(len(big))); err != nil {
		t.Fatalf("payload at the limit must decode, got %v", err)
	}
	if _, _, err := DecodeAvatarPayload(dataURL("image/png", big), int64(len(big))-1); !errors.Is(err, ErrImageTooBig) {
		t.Fatalf("err = %v, want ErrImageTooBig", err)
	}
}
