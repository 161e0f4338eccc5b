package services

import (
	"strings"
	"testing"
)

func TestSplitTextEmptyInput(t *testing.T) {
	cs := NewChunkerService(2000)
	if chunks := cs.SplitText(""); len(chunks) != 0 {
		t.Fatalf("empty input produced %d chunks, want none", len(chunks))
	}
}

func TestSplitTextExhaustivePartition(t *testing.T) {
	cs := NewChunkerService(10)
	text := strings.Repeat("abcde", 7) // 35 chars -> 10+10+10+5

	chunks := cs.SplitText(text)
	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}

	var rebuilt strings.Builder
	for i, chunk := range chunks {
		if chunk.Index != i {
			t.Errorf("chunk %d carries index %d", i, chunk.Index)
		}
		if n := len([]rune(chunk.Text)); n > 10 {
			t.Errorf("chunk %d has %d chars, exceeds max 10", i, n)
		}
		rebuilt.WriteString(chunk.Text)
	}

	if rebuilt.String() != text {
		t.Fatalf("concatenated chunks do not reproduce the input")
	}

	if got := len([]rune(chunks[3].Text)); got != 5 {
		t.Errorf("final chunk has %d chars, want 5", got)
	}
}

func TestSplitTextDeterministic(t *testing.T) {
	cs := NewChunkerService(7)
	text := "The quick brown fox jumps over the lazy dog. And again."

	a := cs.SplitText(text)
	b := cs.SplitText(text)
	if len(a) != len(b) {
		t.Fatalf("chunk counts differ between runs: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Text != b[i].Text {
			t.Errorf("chunk %d differs between runs", i)
		}
	}
}

func TestSplitTextMultibyteBoundaries(t *testing.T) {
	cs := NewChunkerService(3)
	text := "héllo wörld€"

	chunks := cs.SplitText(text)
	var rebuilt strings.Builder
	for _, chunk := range chunks {
		if !strings.Contains(text, chunk.Text) {
			t.Errorf("chunk %q is not a substring of the input, split landed inside a rune", chunk.Text)
		}
		rebuilt.WriteString(chunk.Text)
	}
	if rebuilt.String() != text {
		t.Fatalf("multibyte input not reproduced by chunks")
	}
}

func TestSplitTextShortInputSingleChunk(t *testing.T) {
	cs := NewChunkerService(2000)
	chunks := cs.SplitText("short document")
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Text != "short document" {
		t.Errorf("single chunk altered the text: %q", chunks[0].Text)
	}
}

func TestNewChunkerServiceDefaultSize(t *testing.T) {
	cs := NewChunkerService(0)
	if cs.MaxChunkSize() != 2000 {
		t.Errorf("default chunk size = %d, want 2000", cs.MaxChunkSize())
	}
}

func TestBuildContentChunksMetadata(t *testing.T) {
	cs := NewChunkerService(5)
	chunks := cs.SplitText("hello world")

	content := cs.BuildContentChunks(chunks)
	if len(content) != len(chunks) {
		t.Fatalf("content chunk count %d != %d", len(content), len(chunks))
	}

	offset := 0
	for i, cc := range content {
		if cc.ChunkID == "" {
			t.Errorf("chunk %d missing id", i)
		}
		if cc.StartIndex != offset {
			t.Errorf("chunk %d start %d, want %d", i, cc.StartIndex, offset)
		}
		if cc.EndIndex-cc.StartIndex != cc.CharCount {
			t.Errorf("chunk %d span %d != char count %d", i, cc.EndIndex-cc.StartIndex, cc.CharCount)
		}
		offset = cc.EndIndex
	}
}

func TestChunkCompressionRoundTrip(t *testing.T) {
	cs := NewChunkerService(4000)
	long := strings.Repeat("Brand performance improved across all regions this quarter. ", 40)
	content := cs.BuildContentChunks(cs.SplitText(long))

	compressed, err := CompressChunksForStorage(content)
	if err != nil {
		t.Fatalf("compression failed: %v", err)
	}
	for i, cc := range compressed {
		if !cc.Compressed {
			t.Errorf("chunk %d not marked compressed", i)
		}
	}

	restored, err := DecompressChunksForRetrieval(compressed)
	if err != nil {
		t.Fatalf("decompression failed: %v", err)
	}
	for i := range restored {
		if restored[i].Text != content[i].Text {
			t.Errorf("chunk %d text changed across compression round trip", i)
		}
	}
}
