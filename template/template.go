// Package template builds the fixed L2/L3/L4 header plus PRBS-31
// payload used for every generated frame, and the VL-ID encode/decode
// helpers shared across the data plane.
//
// Frame layout (spec.md §6):
//
//	[ETH dst=03:00:00:00:VV:VV src=02:00:00:00:00:20 802.1Q etype=0x0800]
//	[IPv4 tos=0 ttl=1 proto=UDP src=10.0.0.0 dst=224.224.VV.VV]
//	[UDP  sport=100 dport=100]
//	[PAYLOAD seq(8B be) || PRBS31(port,queue,vl_id)]
package template

import (
	"encoding/binary"
	"net"
)

const (
	EthHeaderLen = 14
	VLANTagLen   = 4
	IPHeaderLen  = 20
	UDPHeaderLen = 8
	SeqOffset    = 0 // offset of the 8-byte sequence within the UDP payload
	SeqLen       = 8

	// HeaderLen is the full on-wire header length including the
	// 802.1Q tag, up to the start of the UDP payload.
	HeaderLen = EthHeaderLen + VLANTagLen + IPHeaderLen + UDPHeaderLen

	// MinStampedLen is the minimum frame length a receiver can apply
	// a PRBS check to; anything shorter is a short_pkt.
	MinStampedLen = HeaderLen + SeqLen

	SrcUDPPort = 100
	DstUDPPort = 100
)

var (
	SrcMAC = net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x20}
	SrcIP  = net.IPv4(10, 0, 0, 0).To4()
)

// EncodeVLID returns the last two bytes of the destination MAC (and,
// identically, the destination IP) for a given VL-ID.
func EncodeVLID(vlid uint16) [2]byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], vlid)
	return b
}

// DstMAC returns the destination MAC for a VL-ID: 03:00:00:00:VV:VV.
func DstMAC(vlid uint16) net.HardwareAddr {
	vv := EncodeVLID(vlid)
	return net.HardwareAddr{0x03, 0x00, 0x00, 0x00, vv[0], vv[1]}
}

// DstIP returns the destination IP for a VL-ID: 224.224.VV.VV.
func DstIP(vlid uint16) net.IP {
	vv := EncodeVLID(vlid)
	return net.IPv4(224, 224, vv[0], vv[1]).To4()
}

// DecodeVLIDFromMAC extracts the candidate VL-ID from destination MAC
// bytes 4-5.
func DecodeVLIDFromMAC(dst net.HardwareAddr) uint16 {
	return binary.BigEndian.Uint16(dst[4:6])
}

// DecodeVLIDFromIP extracts the candidate VL-ID from destination IP
// bytes 2-3 (third and fourth octets).
func DecodeVLIDFromIP(dst net.IP) uint16 {
	v4 := dst.To4()
	return binary.BigEndian.Uint16(v4[2:4])
}

// ipChecksum computes the ones'-complement checksum used by IPv4.
func ipChecksum(buf []byte) uint16 {
	var sum uint32
	for len(buf) > 1 {
		sum += uint32(binary.BigEndian.Uint16(buf))
		buf = buf[2:]
	}
	if len(buf) > 0 {
		sum += uint32(buf[0]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}

// Stamp writes a complete frame of totalLen bytes into buf (which must
// be at least totalLen long): Ethernet+802.1Q+IPv4+UDP headers for
// vlid on vlan, followed by an 8-byte big-endian seq and the PRBS
// payload from cache. It returns the number of bytes written.
func Stamp(buf []byte, vlan uint16, vlid uint16, seq uint64, cache *PRBSCache, port, queue int, totalLen uint32) uint32 {
	const minSize = uint32(HeaderLen + SeqLen)
	if totalLen < minSize {
		totalLen = minSize
	}

	dstMAC := DstMAC(vlid)
	copy(buf[0:6], dstMAC)
	copy(buf[6:12], SrcMAC)
	buf[12], buf[13] = 0x81, 0x00 // 802.1Q TPID
	binary.BigEndian.PutUint16(buf[14:16], vlan&0x0fff)
	buf[16], buf[17] = 0x08, 0x00 // inner EtherType: IPv4

	ipStart := EthHeaderLen + VLANTagLen
	ip := buf[ipStart:]
	payloadLen := totalLen - uint32(HeaderLen)

	ip[0] = 0x45 // version 4, IHL 5
	ip[1] = 0    // TOS=0
	binary.BigEndian.PutUint16(ip[2:4], uint16(IPHeaderLen+UDPHeaderLen)+uint16(payloadLen))
	ip[8] = 1  // TTL=1
	ip[9] = 17 // proto=UDP
	copy(ip[12:16], SrcIP)
	dstIP := DstIP(vlid)
	copy(ip[16:20], dstIP)
	binary.BigEndian.PutUint16(ip[10:12], 0)
	binary.BigEndian.PutUint16(ip[10:12], ipChecksum(ip[:IPHeaderLen]))

	udp := ip[IPHeaderLen:]
	binary.BigEndian.PutUint16(udp[0:2], SrcUDPPort)
	binary.BigEndian.PutUint16(udp[2:4], DstUDPPort)
	binary.BigEndian.PutUint16(udp[4:6], uint16(UDPHeaderLen)+uint16(payloadLen))
	binary.BigEndian.PutUint16(udp[6:8], 0)

	payload := udp[UDPHeaderLen:]
	binary.BigEndian.PutUint64(payload[SeqOffset:SeqOffset+SeqLen], seq)
	if int(payloadLen) > SeqLen {
		copy(payload[SeqLen:payloadLen], cache.Stream(port, queue, vlid))
	}

	return totalLen
}

// Verify compares a received frame's payload (after the 8-byte
// sequence field) against the PRBS cache. It returns whether the
// payload matched and the number of bit differences found (capped at
// 8*len(payload)).
func Verify(payload []byte, cache *PRBSCache, port, queue int, vlid uint16) (ok bool, bitErrors int) {
	if len(payload) <= SeqLen {
		return true, 0
	}
	body := payload[SeqLen:]
	want := cache.Stream(port, queue, vlid)
	n := len(body)
	if len(want) < n {
		n = len(want)
	}
	for i := 0; i < n; i++ {
		diff := body[i] ^ want[i]
		if diff != 0 {
			bitErrors += popcount(diff)
		}
	}
	return bitErrors == 0, bitErrors
}

func popcount(b byte) int {
	count := 0
	for b != 0 {
		count += int(b & 1)
		b >>= 1
	}
	return count
}

// ReadSeq extracts the 8-byte big-endian sequence number from payload.
func ReadSeq(payload []byte) uint64 {
	return binary.BigEndian.Uint64(payload[SeqOffset : SeqOffset+SeqLen])
}
