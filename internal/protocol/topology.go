package protocol

import "fmt"

// Role is the electrode role a channel is assigned to.
type Role byte

const (
	RoleCounter   Role = 'C'
	RoleReference Role = 'R'
	RoleSense     Role = 'S'
	RoleWorking   Role = 'W'
)

func (r Role) String() string {
	return string(rune(r))
}

// Mode codes as sent in frontend frames.
const (
	ModeTwoPoint   byte = 0x01
	ModeFourPoint  byte = 0x02
	ModeThreePoint byte = 0x03
)

// Topology describes one electrode arrangement.
type Topology struct {
	Points int
	Mode   byte
	// FrameType is both the settings payload length and the type byte of
	// the query response.
	FrameType byte
	// ResponseLength is the full length of a query response frame.
	ResponseLength int
	Roles          []Role
}

var topologies = []Topology{
	{Points: 2, Mode: ModeTwoPoint, FrameType: 0x09, ResponseLength: 17, Roles: []Role{RoleCounter, RoleWorking}},
	{Points: 3, Mode: ModeThreePoint, FrameType: 0x0C, ResponseLength: 20, Roles: []Role{RoleCounter, RoleReference, RoleWorking}},
	{Points: 4, Mode: ModeFourPoint, FrameType: 0x0F, ResponseLength: 23, Roles: []Role{RoleCounter, RoleReference, RoleSense, RoleWorking}},
}

// channelFieldSize is the channel code plus its 2-byte extension.
const channelFieldSize = 3

// frontendHeaderSize is mode, current range and voltage range.
const frontendHeaderSize = 3

func (t Topology) String() string {
	return fmt.Sprintf("%d-point", t.Points)
}

// PayloadSize is the settings payload length for this topology.
func (t Topology) PayloadSize() int {
	return frontendHeaderSize + channelFieldSize*len(t.Roles)
}

// TopologyForMode finds the topology of a mode code.
func TopologyForMode(mode byte) (Topology, bool) {
	for _, t := range topologies {
		if t.Mode == mode {
			return t, true
		}
	}

	return Topology{}, false
}

func topologyForFrameType(frameType byte) (Topology, bool) {
	for _, t := range topologies {
		if t.FrameType == frameType {
			return t, true
		}
	}

	return Topology{}, false
}
