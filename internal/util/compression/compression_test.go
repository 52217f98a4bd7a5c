package compression

import (
	"bytes"
	"strings"
	"sync"
	"testing"
)

func TestCompressors(t *testing.T) {
	compressors := map[string]Compressor{
		"zstd": ZstdCompressor{},
	}

	inputs := [][]byte{
		[]byte("# Hello\n\nSome *markdown*"),
		[]byte(strings.Repeat("lorem ipsum ", 500)),
	}

	for name, c := range compressors {
		t.Run(name, func(t *testing.T) {
			for _, in := range inputs {
				compressed, err := c.Compress(in)
				if err != nil {
					t.Fatalf("Compress failed: %v", err)
				}
				out, err := c.Decompress(compressed)
				if err != nil {
					t.Fatalf("Decompress failed: %v", err)
				}
				if !bytes.Equal(in, out) {
					t.Errorf("Round trip mismatch for %d bytes", len(in))
				}
			}
		})
	}
}

func TestZstdDecompressEmpty(t *testing.T) {
	out, err := ZstdCompressor{}.Decompress(nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Expected empty output, got %q", out)
	}
}

func TestZstdConcurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := []byte(strings.Repeat("x", i*100+1))
			c := ZstdCompressor{}
			compressed, err := c.Compress(in)
			if err != nil {
				t.Errorf("Compress failed: %v", err)
				return
			}
			out, err := c.Decompress(compressed)
			if err != nil || !bytes.Equal(in, out) {
				t.Errorf("Round trip failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
}
