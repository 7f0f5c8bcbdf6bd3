package template

import "testing"

func TestVLIDRoundTripMACIPAgree(t *testing.T) {
	for _, vlid := range []uint16{3, 100, 4096, 4799} {
		mac := DstMAC(vlid)
		ip := DstIP(vlid)
		if got := DecodeVLIDFromMAC(mac); got != vlid {
			t.Errorf("DecodeVLIDFromMAC(DstMAC(%d)) = %d", vlid, got)
		}
		if got := DecodeVLIDFromIP(ip); got != vlid {
			t.Errorf("DecodeVLIDFromIP(DstIP(%d)) = %d", vlid, got)
		}
		if got := DecodeVLIDFromMAC(mac); got != DecodeVLIDFromIP(ip) {
			t.Errorf("VL-ID encodings disagree for %d: mac=%d ip=%d", vlid, got, DecodeVLIDFromIP(ip))
		}
	}
}

func TestStampDeterministic(t *testing.T) {
	cache := NewPRBSCache(1518)
	buf1 := make([]byte, 256)
	buf2 := make([]byte, 256)
	Stamp(buf1, 105, 1027, 42, cache, 0, 0, 256)
	Stamp(buf2, 105, 1027, 42, cache, 0, 0, 256)
	for i := range buf1 {
		if buf1[i] != buf2[i] {
			t.Fatalf("byte %d differs between two stamps of identical (port,queue,vlid,seq)", i)
			break
		}
	}
}

func TestStampAndVerifyRoundTrip(t *testing.T) {
	cache := NewPRBSCache(1518)
	buf := make([]byte, 256)
	Stamp(buf, 105, 1027, 7, cache, 1, 2, 256)

	payload := buf[HeaderLen:]
	if seq := ReadSeq(payload); seq != 7 {
		t.Errorf("ReadSeq = %d, want 7", seq)
	}
	ok, bitErrors := Verify(payload, cache, 1, 2, 1027)
	if !ok || bitErrors != 0 {
		t.Errorf("Verify on unmodified stamp: ok=%v bitErrors=%d, want true/0", ok, bitErrors)
	}

	payload[SeqLen] ^= 0xFF
	ok, bitErrors = Verify(payload, cache, 1, 2, 1027)
	if ok || bitErrors == 0 {
		t.Errorf("Verify after bit-flip: ok=%v bitErrors=%d, want false/>0", ok, bitErrors)
	}
}

func TestShortPayloadVerifiesClean(t *testing.T) {
	cache := NewPRBSCache(1518)
	ok, bitErrors := Verify([]byte{1, 2, 3}, cache, 0, 0, 5)
	if !ok || bitErrors != 0 {
		t.Errorf("short payload should not be PRBS-checked: ok=%v bitErrors=%d", ok, bitErrors)
	}
}
