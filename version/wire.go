// wire.go implements the §6 wire structs in their field order, with
// every did written as its full 16-byte UUID rather than a u64, framed
// with the teacher's TLV scheme (protocol/tlv.go):
// tiny/short/long record selection via AppendHeader/Take. Reusing the
// in-repo protocol package directly rather than adding an external TLV
// module dependency, since the teacher itself treats this package as
// canonical framing for new wire structs.
package version

import (
	"encoding/binary"

	"github.com/drpcorg/regiontree/protocol"
)

const (
	litEquivalenceSetResponse  byte = 'E'
	litVersionManagerRequest   byte = 'Q'
	litVersionManagerResponse  byte = 'R'
)

// EquivalenceSetResponse is `did: 16-byte UUID || expression: IndexSpaceExpression-encoded bytes`.
type EquivalenceSetResponse struct {
	DID        DistributedID
	Expression []byte
}

func EncodeEquivalenceSetResponse(r EquivalenceSetResponse) []byte {
	var body []byte
	var didBytes [16]byte
	copy(didBytes[:], r.DID[:])
	body = append(body, didBytes[:]...)
	body = append(body, r.Expression...)
	return protocol.Record(litEquivalenceSetResponse, body)
}

func DecodeEquivalenceSetResponse(rec []byte) (EquivalenceSetResponse, bool) {
	body, _ := protocol.Take(litEquivalenceSetResponse, rec)
	if body == nil || len(body) < 16 {
		return EquivalenceSetResponse{}, false
	}
	var did DistributedID
	copy(did[:], body[0:16])
	return EquivalenceSetResponse{DID: did, Expression: append([]byte{}, body[16:]...)}, true
}

// VersionManagerRequest is
// `remote_manager_ptr || context_uid: u64 || is_region: bool || handle: RegionHandle|PartitionHandle`.
type VersionManagerRequest struct {
	RemoteManagerPtr uint64
	ContextUID       uint64
	IsRegion         bool
	Handle           uint64
}

func EncodeVersionManagerRequest(r VersionManagerRequest) []byte {
	body := make([]byte, 0, 25)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], r.RemoteManagerPtr)
	body = append(body, buf[:]...)
	binary.LittleEndian.PutUint64(buf[:], r.ContextUID)
	body = append(body, buf[:]...)
	if r.IsRegion {
		body = append(body, 1)
	} else {
		body = append(body, 0)
	}
	binary.LittleEndian.PutUint64(buf[:], r.Handle)
	body = append(body, buf[:]...)
	return protocol.Record(litVersionManagerRequest, body)
}

func DecodeVersionManagerRequest(rec []byte) (VersionManagerRequest, bool) {
	body, _ := protocol.Take(litVersionManagerRequest, rec)
	if len(body) < 25 {
		return VersionManagerRequest{}, false
	}
	return VersionManagerRequest{
		RemoteManagerPtr: binary.LittleEndian.Uint64(body[0:8]),
		ContextUID:       binary.LittleEndian.Uint64(body[8:16]),
		IsRegion:         body[16] != 0,
		Handle:           binary.LittleEndian.Uint64(body[17:25]),
	}, true
}

// VersionManagerResponse is
// `remote_manager_ptr: u64 || count: u64 || [did: 16-byte UUID]*count`.
//
// This repository's DistributedIDs are UUIDv7s (128 bits, §4.8), so
// each did slot is the UUID's full 16 bytes, written contiguously; it
// is not a u64.
type VersionManagerResponse struct {
	RemoteManagerPtr uint64
	DIDs             []DistributedID
}

func EncodeVersionManagerResponse(r VersionManagerResponse) []byte {
	body := make([]byte, 0, 16+16*len(r.DIDs))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], r.RemoteManagerPtr)
	body = append(body, buf[:]...)
	binary.LittleEndian.PutUint64(buf[:], uint64(len(r.DIDs)))
	body = append(body, buf[:]...)
	for _, did := range r.DIDs {
		body = append(body, did[:]...)
	}
	bookmark, buf2 := protocol.OpenHeader(nil, litVersionManagerResponse)
	buf2 = append(buf2, body...)
	protocol.CloseHeader(buf2, bookmark)
	return buf2
}

func DecodeVersionManagerResponse(rec []byte) (VersionManagerResponse, bool) {
	body, _ := protocol.Take(litVersionManagerResponse, rec)
	if len(body) < 16 {
		return VersionManagerResponse{}, false
	}
	ptr := binary.LittleEndian.Uint64(body[0:8])
	count := binary.LittleEndian.Uint64(body[8:16])
	body = body[16:]
	if uint64(len(body)) < count*16 {
		return VersionManagerResponse{}, false
	}
	dids := make([]DistributedID, count)
	for i := uint64(0); i < count; i++ {
		copy(dids[i][:], body[i*16:i*16+16])
	}
	return VersionManagerResponse{RemoteManagerPtr: ptr, DIDs: dids}, true
}
