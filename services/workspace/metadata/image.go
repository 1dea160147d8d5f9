// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package metadata

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/vmihailenco/msgpack/v5"
)

// ImageFormat is the header value identifying an encoded Image.
const ImageFormat = "aleutian-image/v1"

// imageMagic prefixes every encoded image.
var imageMagic = []byte("ALIMG\x01")

// Symbol is one declaration visible through an image.
type Symbol struct {
	Name      string `msgpack:"name"`
	Kind      string `msgpack:"kind"`
	Signature string `msgpack:"sig"`
}

// Image is the binary artifact produced for a project.
//
// A skeleton image carries only public signatures. Checksum identifies the
// public surface and is stable across edits that leave the surface unchanged.
type Image struct {
	Format       string   `msgpack:"format"`
	AssemblyName string   `msgpack:"assembly"`
	Language     string   `msgpack:"language"`
	Skeleton     bool     `msgpack:"skeleton"`
	Checksum     string   `msgpack:"checksum"`
	Symbols      []Symbol `msgpack:"symbols"`
	References   []string `msgpack:"references,omitempty"`
}

// EncodeImage serializes an image.
func EncodeImage(img *Image) ([]byte, error) {
	if img.Format == "" {
		img.Format = ImageFormat
	}
	body, err := msgpack.Marshal(img)
	if err != nil {
		return nil, fmt.Errorf("encoding image %s: %w", img.AssemblyName, err)
	}
	return append(append([]byte{}, imageMagic...), body...), nil
}

// IsImage reports whether data starts with the image header.
func IsImage(data []byte) bool {
	return bytes.HasPrefix(data, imageMagic)
}

// DecodeImage parses bytes produced by EncodeImage.
func DecodeImage(data []byte) (*Image, error) {
	if !IsImage(data) {
		return nil, fmt.Errorf("missing header: %w", ErrInvalidImage)
	}
	var img Image
	if err := msgpack.Unmarshal(data[len(imageMagic):], &img); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidImage)
	}
	if img.Format != ImageFormat {
		return nil, fmt.Errorf("unsupported format %q: %w", img.Format, ErrInvalidImage)
	}
	return &img, nil
}

// WriteImage encodes img to path, creating parent directories.
func WriteImage(fs afero.Fs, path string, img *Image) error {
	data, err := EncodeImage(img)
	if err != nil {
		return err
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory for %s: %w", path, err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return fmt.Errorf("writing image %s: %w", path, err)
	}
	return nil
}

// opaqueImage describes a binary that is not in image format.
func opaqueImage(path string, data []byte) *Image {
	sum := sha256.Sum256(data)
	return &Image{
		Format:       "opaque",
		AssemblyName: trimExt(filepath.Base(path)),
		Checksum:     hex.EncodeToString(sum[:]),
	}
}

func trimExt(name string) string {
	return name[:len(name)-len(filepath.Ext(name))]
}
