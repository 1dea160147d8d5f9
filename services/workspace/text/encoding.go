// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package text

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/encoding/unicode/utf32"
)

// Encoding identifies the character encoding of a text and whether it carried
// a byte-order mark.
//
// The zero Encoding means "not specified".
type Encoding struct {
	Name string
	BOM  bool

	enc encoding.Encoding
}

// UTF8 is UTF-8 without a byte-order mark.
var UTF8 = Encoding{Name: "UTF-8", enc: unicode.UTF8}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
	bomUTF32LE = []byte{0xFF, 0xFE, 0x00, 0x00}
	bomUTF32BE = []byte{0x00, 0x00, 0xFE, 0xFF}
)

// codePages maps Windows code page numbers to IANA names.
var codePages = map[int]string{
	437:   "IBM437",
	850:   "IBM850",
	852:   "IBM852",
	855:   "IBM855",
	858:   "IBM00858",
	860:   "IBM860",
	862:   "IBM862",
	863:   "IBM863",
	865:   "IBM865",
	866:   "IBM866",
	874:   "windows-874",
	932:   "Shift_JIS",
	936:   "GBK",
	949:   "EUC-KR",
	950:   "Big5",
	1200:  "UTF-16LE",
	1201:  "UTF-16BE",
	1250:  "windows-1250",
	1251:  "windows-1251",
	1252:  "windows-1252",
	1253:  "windows-1253",
	1254:  "windows-1254",
	1255:  "windows-1255",
	1256:  "windows-1256",
	1257:  "windows-1257",
	1258:  "windows-1258",
	10000: "macintosh",
	12000: "UTF-32LE",
	12001: "UTF-32BE",
	20866: "KOI8-R",
	21866: "KOI8-U",
	28591: "ISO-8859-1",
	28592: "ISO-8859-2",
	28593: "ISO-8859-3",
	28594: "ISO-8859-4",
	28595: "ISO-8859-5",
	28596: "ISO-8859-6",
	28597: "ISO-8859-7",
	28598: "ISO-8859-8",
	28599: "ISO-8859-9",
	28603: "ISO-8859-13",
	28605: "ISO-8859-15",
	50220: "ISO-2022-JP",
	51932: "EUC-JP",
	54936: "GB18030",
	65001: "UTF-8",
}

// LookupCodePage returns the encoding registered for a Windows code page number.
//
// # Outputs
//
//   - Encoding: The encoding, without BOM.
//   - error: ErrUnknownEncoding if the number is unmapped or unsupported.
func LookupCodePage(codePage int) (Encoding, error) {
	name, ok := codePages[codePage]
	if !ok {
		return Encoding{}, fmt.Errorf("code page %d: %w", codePage, ErrUnknownEncoding)
	}
	return LookupName(name)
}

// LookupName returns the encoding registered under an IANA name or alias.
func LookupName(name string) (Encoding, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Encoding{}, fmt.Errorf("empty name: %w", ErrUnknownEncoding)
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil || enc == nil {
		return Encoding{}, fmt.Errorf("encoding %q: %w", name, ErrUnknownEncoding)
	}
	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil {
		canonical = name
	}
	return Encoding{Name: canonical, enc: enc}, nil
}

// Explicit resolves a descriptor-supplied code page or encoding name.
//
// The code page wins when both are set. The boolean is false when neither
// names a supported encoding, in which case callers fall back to strict UTF-8.
func Explicit(codePage int, name string) (Encoding, bool) {
	if codePage > 0 {
		if enc, err := LookupCodePage(codePage); err == nil {
			return enc, true
		}
	}
	if name != "" {
		if enc, err := LookupName(name); err == nil {
			return enc, true
		}
	}
	return Encoding{}, false
}

// IsZero reports whether no encoding is specified.
func (e Encoding) IsZero() bool {
	return e.Name == ""
}

func (e Encoding) isUTF8() bool {
	return strings.EqualFold(e.Name, "UTF-8")
}

func (e Encoding) String() string {
	if e.IsZero() {
		return "unspecified"
	}
	if e.BOM {
		return e.Name + "+BOM"
	}
	return e.Name
}

// DetectBOM inspects the leading bytes for a byte-order mark.
//
// # Outputs
//
//   - Encoding: The encoding implied by the mark, with BOM set.
//   - int: Length of the mark in bytes.
//   - bool: False when no mark is present.
func DetectBOM(data []byte) (Encoding, int, bool) {
	switch {
	case bytes.HasPrefix(data, bomUTF32LE):
		return Encoding{Name: "UTF-32LE", BOM: true, enc: utf32.UTF32(utf32.LittleEndian, utf32.IgnoreBOM)}, 4, true
	case bytes.HasPrefix(data, bomUTF32BE):
		return Encoding{Name: "UTF-32BE", BOM: true, enc: utf32.UTF32(utf32.BigEndian, utf32.IgnoreBOM)}, 4, true
	case bytes.HasPrefix(data, bomUTF8):
		return Encoding{Name: "UTF-8", BOM: true, enc: unicode.UTF8}, 3, true
	case bytes.HasPrefix(data, bomUTF16LE):
		return Encoding{Name: "UTF-16LE", BOM: true, enc: unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)}, 2, true
	case bytes.HasPrefix(data, bomUTF16BE):
		return Encoding{Name: "UTF-16BE", BOM: true, enc: unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM)}, 2, true
	}
	return Encoding{}, 0, false
}

// Decode converts raw bytes into text.
//
// # Description
//
// Precedence: a byte-order mark overrides everything; otherwise a non-zero
// explicit encoding is used; otherwise the bytes must be strictly valid UTF-8.
// UTF-8 is always validated strictly, never decoded with replacement.
//
// # Inputs
//
//   - data: Raw file contents.
//   - explicit: Descriptor-supplied encoding, or the zero Encoding.
//
// # Outputs
//
//   - string: Decoded text without the BOM.
//   - Encoding: The encoding actually used.
//   - error: ErrInvalidEncoding wrapped with detail on malformed input.
func Decode(data []byte, explicit Encoding) (string, Encoding, error) {
	enc := explicit
	if bom, n, ok := DetectBOM(data); ok {
		enc = bom
		data = data[n:]
	}
	if enc.IsZero() || enc.enc == nil || enc.isUTF8() {
		if !utf8.Valid(data) {
			return "", Encoding{}, fmt.Errorf("decoding as UTF-8: %w", ErrInvalidEncoding)
		}
		if enc.IsZero() || enc.enc == nil {
			enc = UTF8
		}
		return string(data), enc, nil
	}

	out, err := enc.enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", Encoding{}, fmt.Errorf("decoding as %s: %v: %w", enc.Name, err, ErrInvalidEncoding)
	}
	return string(out), enc, nil
}

// Encode converts text back into bytes in the given encoding, restoring the
// byte-order mark when the encoding carried one. The zero Encoding encodes UTF-8.
func Encode(s string, enc Encoding) ([]byte, error) {
	var body []byte
	if enc.IsZero() || enc.enc == nil || enc.isUTF8() {
		body = []byte(s)
	} else {
		out, err := enc.enc.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, fmt.Errorf("encoding as %s: %w", enc.Name, err)
		}
		body = out
	}
	if !enc.BOM {
		return body, nil
	}

	var bom []byte
	switch strings.ToUpper(enc.Name) {
	case "UTF-8":
		bom = bomUTF8
	case "UTF-16LE":
		bom = bomUTF16LE
	case "UTF-16BE":
		bom = bomUTF16BE
	case "UTF-32LE":
		bom = bomUTF32LE
	case "UTF-32BE":
		bom = bomUTF32BE
	}
	return append(append([]byte{}, bom...), body...), nil
}
