package domain

// Protocol is a negotiated WebSocket subprotocol name.
type Protocol string

const (
	ProtoBinary Protocol = "pyv3d-bin-1.0"
	ProtoText   Protocol = "pyv3d-txt-1.0"
)

// Protocols is the server's fixed priority list.
var Protocols = []Protocol{ProtoBinary, ProtoText}

// Known reports whether p is one of the supported subprotocols.
func (p Protocol) Known() bool {
	for _, k := range Protocols {
		if p == k {
			return true
		}
	}
	return false
}

// Binary reports whether p is the binary data channel.
func (p Protocol) Binary() bool { return p == ProtoBinary }
