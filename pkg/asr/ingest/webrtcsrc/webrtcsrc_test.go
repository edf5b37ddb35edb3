package webrtcsrc

import (
	"io"
	"testing"
)

func TestChanReaderReadsQueuedChunks(t *testing.T) {
	ch := make(chan []byte, 2)
	ch <- []byte{1, 2, 3}
	ch <- []byte{4, 5}
	close(ch)

	r := &chanReader{ch: ch}

	buf := make([]byte, 2)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 2 || buf[0] != 1 || buf[1] != 2 {
		t.Fatalf("first Read = %v (n=%d), want [1 2]", buf, n)
	}

	n, err = r.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 1 || buf[0] != 3 {
		t.Fatalf("second Read = %v (n=%d), want [3]", buf, n)
	}

	n, err = r.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != 2 || buf[0] != 4 || buf[1] != 5 {
		t.Fatalf("third Read = %v (n=%d), want [4 5]", buf, n)
	}

	_, err = r.Read(buf)
	if err != io.EOF {
		t.Fatalf("Read after close: err = %v, want io.EOF", err)
	}
}
