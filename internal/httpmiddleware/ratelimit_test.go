package httpmiddleware

import "testing"

func TestTokenBucketExhausts(t *testing.T) {
	l := NewSimpleTokenBucket(3, 3)
	for i := 0; i < 3; i++ {
		if !l.allow("10.0.0.1") {
			t.Fatalf("request %d denied within capacity", i+1)
		}
	}
	if l.allow("10.0.0.1") {
		t.Error("request over capacity allowed")
	}
}

func TestTokenBucketIsPerClient(t *testing.T) {
	l := NewSimpleTokenBucket(1, 1)
	if !l.allow("10.0.0.1") {
		t.Fatal("first client denied")
	}
	if !l.allow("10.0.0.2") {
		t.Error("second client throttled by first client's bucket")
	}
}

func TestTokenBucketDefaultsCapacity(t *testing.T) {
	l := NewSimpleTokenBucket(0, 5)
	if l.capacity != 5 {
		t.Errorf("capacity = %d, want rate fallback 5", l.capacity)
	}
}
