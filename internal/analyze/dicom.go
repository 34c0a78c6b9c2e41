package analyze

import (
	"encoding/binary"
	"io"
	"os"
	"strings"

	"github.com/datallboy/datascan/internal/domain"
)

// DICOM tags the sniffer cares about, as group<<16|element.
const (
	tagSOPClassUID       = 0x0008_0016
	tagModality          = 0x0008_0060
	tagBodyPartExamined  = 0x0018_0015
	tagStudyInstanceUID  = 0x0020_000D
	tagSeriesInstanceUID = 0x0020_000E
	tagRows              = 0x0028_0010
	tagColumns           = 0x0028_0011
	tagPixelData         = 0x7FE0_0010
)

// dicomHeaderLimit caps how much of a file the element walk reads.
// Every tag we need sits well before pixel data.
const dicomHeaderLimit = 1 << 20

// looksLikeDicom checks for the DICM magic at offset 128.
func looksLikeDicom(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	preamble := make([]byte, 132)
	if _, err := io.ReadFull(f, preamble); err != nil {
		return false
	}
	return string(preamble[128:132]) == "DICM"
}

// sniffDicom reads the DICOM header without touching pixel data.
// Returns ok=false when the file cannot be parsed as DICOM, letting
// the cascade fall through.
func sniffDicom(path string, sizeBytes int64) (SniffInfo, bool) {
	f, err := os.Open(path)
	if err != nil {
		return SniffInfo{}, false
	}
	defer f.Close()

	hdr, err := parseDicomHeader(io.LimitReader(f, dicomHeaderLimit))
	if err != nil {
		return SniffInfo{}, false
	}

	modality := hdr.modality
	if modality == "" {
		modality = "unknown"
	}

	info := SniffInfo{
		Kind: domain.KindDicom,
		// A single DICOM instance is 2D; 3D volumes are detected at
		// series level during finalize.
		NDim:      2,
		Modality:  modality,
		SizeBytes: sizeBytes,
		Meta: domain.FileMeta{
			SOPClassUID:       hdr.sopClassUID,
			SeriesInstanceUID: hdr.seriesInstanceUID,
			StudyInstanceUID:  hdr.studyInstanceUID,
			BodyPartExamined:  hdr.bodyPartExamined,
		},
	}
	if hdr.rows > 0 && hdr.cols > 0 {
		info.Dims = []int{hdr.cols, hdr.rows}
	}
	return info, true
}

type dicomHeader struct {
	sopClassUID       string
	modality          string
	bodyPartExamined  string
	studyInstanceUID  string
	seriesInstanceUID string
	rows              int
	cols              int
}

// parseDicomHeader walks data elements in little-endian encoding,
// handling both explicit and implicit VR. Defined-length sequences are
// skipped by byte count; the walk stops at pixel data, at the first
// undefined-length element, or once all wanted tags were seen.
func parseDicomHeader(r io.Reader) (dicomHeader, error) {
	var hdr dicomHeader

	preamble := make([]byte, 132)
	if _, err := io.ReadFull(r, preamble); err != nil {
		return hdr, err
	}
	if string(preamble[128:132]) != "DICM" {
		return hdr, io.ErrUnexpectedEOF
	}

	buf := make([]byte, 8)
	seen := 0
	for seen < 7 {
		if _, err := io.ReadFull(r, buf); err != nil {
			// Truncated tail after a complete-enough header is fine.
			break
		}

		group := binary.LittleEndian.Uint16(buf[0:2])
		elem := binary.LittleEndian.Uint16(buf[2:4])
		tag := uint32(group)<<16 | uint32(elem)

		if tag == tagPixelData {
			break
		}

		vr := string(buf[4:6])
		var length uint32

		if isExplicitVR(vr) {
			switch vr {
			case "OB", "OW", "OF", "SQ", "UT", "UN":
				// Long form: buf[6:8] are the reserved bytes, the
				// 4-byte length follows.
				var ext [4]byte
				if _, err := io.ReadFull(r, ext[:]); err != nil {
					return hdr, err
				}
				length = binary.LittleEndian.Uint32(ext[:])
			default:
				length = uint32(binary.LittleEndian.Uint16(buf[6:8]))
			}
		} else {
			length = binary.LittleEndian.Uint32(buf[4:8])
		}

		if length == 0xFFFFFFFF {
			// Undefined lengths need delimiter tracking to skip; the
			// tags we want all carry defined lengths. Sequences with a
			// defined length are skipped whole below.
			break
		}

		wanted := isWantedTag(tag)
		if !wanted {
			if _, err := io.CopyN(io.Discard, r, int64(length)); err != nil {
				break
			}
			continue
		}

		value := make([]byte, length)
		if _, err := io.ReadFull(r, value); err != nil {
			break
		}
		seen++

		switch tag {
		case tagSOPClassUID:
			hdr.sopClassUID = trimDicomString(value)
		case tagModality:
			hdr.modality = trimDicomString(value)
		case tagBodyPartExamined:
			hdr.bodyPartExamined = trimDicomString(value)
		case tagStudyInstanceUID:
			hdr.studyInstanceUID = trimDicomString(value)
		case tagSeriesInstanceUID:
			hdr.seriesInstanceUID = trimDicomString(value)
		case tagRows:
			if len(value) >= 2 {
				hdr.rows = int(binary.LittleEndian.Uint16(value))
			}
		case tagColumns:
			if len(value) >= 2 {
				hdr.cols = int(binary.LittleEndian.Uint16(value))
			}
		}
	}

	return hdr, nil
}

func isExplicitVR(vr string) bool {
	if len(vr) != 2 {
		return false
	}
	for i := 0; i < 2; i++ {
		if vr[i] < 'A' || vr[i] > 'Z' {
			return false
		}
	}
	return true
}

func isWantedTag(tag uint32) bool {
	switch tag {
	case tagSOPClassUID, tagModality, tagBodyPartExamined,
		tagStudyInstanceUID, tagSeriesInstanceUID, tagRows, tagColumns:
		return true
	}
	return false
}

// trimDicomString strips the padding DICOM uses to even out value
// lengths.
func trimDicomString(b []byte) string {
	return strings.TrimRight(string(b), " \x00")
}
