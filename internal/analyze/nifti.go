package analyze

import (
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"strings"

	"github.com/datallboy/datascan/internal/domain"
)

const niftiHeaderSize = 348

// sniffNifti parses the NIfTI-1 header for the full volume shape.
// Parse failures still report kind=nifti with unknown dimensionality,
// the suffix being authoritative for the kind.
func sniffNifti(path string, sizeBytes int64) SniffInfo {
	info := SniffInfo{Kind: domain.KindNifti, Modality: "unknown", SizeBytes: sizeBytes}

	dims, err := readNiftiDims(path)
	if err != nil || len(dims) == 0 {
		return info
	}

	info.NDim = len(dims)
	info.Dims = dims
	return info
}

func readNiftiDims(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(strings.ToLower(path), ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	}

	hdr := make([]byte, niftiHeaderSize)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}

	// sizeof_hdr doubles as the byte-order probe: 348 in the file's
	// native order.
	order := binary.ByteOrder(binary.LittleEndian)
	if binary.LittleEndian.Uint32(hdr[0:4]) != niftiHeaderSize {
		if binary.BigEndian.Uint32(hdr[0:4]) != niftiHeaderSize {
			return nil, io.ErrUnexpectedEOF
		}
		order = binary.BigEndian
	}

	// dim[0] holds the rank, dim[1..7] the extents, at offset 40.
	ndim := int(int16(order.Uint16(hdr[40:42])))
	if ndim < 1 || ndim > 7 {
		return nil, io.ErrUnexpectedEOF
	}

	dims := make([]int, 0, ndim)
	for i := 1; i <= ndim; i++ {
		d := int(int16(order.Uint16(hdr[40+2*i : 42+2*i])))
		if d < 1 {
			d = 1
		}
		dims = append(dims, d)
	}
	return dims, nil
}
