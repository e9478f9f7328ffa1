package record

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
)

var npyMagic = []byte("\x93NUMPY")

// WriteDepthNPY materializes accumulated depth frames as one NPY v1.0 array
// of shape (len(frames), height, width) with dtype <u2.
func WriteDepthNPY(path string, frames [][]uint16, width, height int) error {
	header := fmt.Sprintf("{'descr': '<u2', 'fortran_order': False, 'shape': (%d, %d, %d), }",
		len(frames), height, width)
	// preamble is magic + version + header length; pad the dict with spaces
	// so the data section starts on a 64-byte boundary
	preamble := len(npyMagic) + 2 + 2
	pad := (64 - (preamble+len(header)+1)%64) % 64
	header = header + strings.Repeat(" ", pad) + "\n"

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	w.Write(npyMagic)
	w.Write([]byte{1, 0})
	var hlen [2]byte
	binary.LittleEndian.PutUint16(hlen[:], uint16(len(header)))
	w.Write(hlen[:])
	w.WriteString(header)

	var sample [2]byte
	for _, depth := range frames {
		for _, d := range depth {
			binary.LittleEndian.PutUint16(sample[:], d)
			w.Write(sample[:])
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	return f.Close()
}
