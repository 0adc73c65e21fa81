// Package topics encodes and decodes the hierarchical topic scheme shared by
// every service on the bus:
//
//	highway/{tollboothId}/{entry|exit}/{manual|telepass|camera}/{leaf}
//
// plus the flat global-request form highway/requests/{leaf}. Parsing is
// purely syntactic; whether a tollbooth id is "mine" is the subscriber's
// problem.
package topics

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidTopic = errors.New("invalid topic")

type Direction string

const (
	DirectionEntry Direction = "entry"
	DirectionExit  Direction = "exit"
)

type Channel string

const (
	ChannelManual   Channel = "manual"
	ChannelTelepass Channel = "telepass"
	ChannelCamera   Channel = "camera"
)

type Leaf string

const (
	LeafCommands  Leaf = "commands"
	LeafEvents    Leaf = "events"
	LeafResponses Leaf = "responses"
	LeafState     Leaf = "state"
	LeafRequests  Leaf = "requests"
	LeafTollPrice Leaf = "tollprice"
)

const prefix = "highway"

// Address is the decoded form of a topic. Global requests carry no tollbooth
// id, direction or channel.
type Address struct {
	TollboothID string
	Direction   Direction
	Channel     Channel
	Leaf        Leaf
	Global      bool
}

func Parse(topic string) (Address, error) {
	p := strings.Split(topic, "/")
	if len(p) < 2 || p[0] != prefix {
		return Address{}, fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	// Global form: highway/requests/{leaf}
	if len(p) == 3 && p[1] == string(LeafRequests) {
		return Address{Leaf: Leaf(p[2]), Global: true}, nil
	}

	if len(p) != 5 {
		return Address{}, fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	return Address{
		TollboothID: p[1],
		Direction:   Direction(p[2]),
		Channel:     Channel(p[3]),
		Leaf:        Leaf(p[4]),
	}, nil
}

func (a Address) String() string {
	if a.Global {
		return fmt.Sprintf("%s/%s/%s", prefix, LeafRequests, a.Leaf)
	}
	return fmt.Sprintf("%s/%s/%s/%s/%s", prefix, a.TollboothID, a.Direction, a.Channel, a.Leaf)
}

func Commands(tollboothID string, dir Direction, ch Channel) string {
	return Address{TollboothID: tollboothID, Direction: dir, Channel: ch, Leaf: LeafCommands}.String()
}

func Events(tollboothID string, dir Direction, ch Channel) string {
	return Address{TollboothID: tollboothID, Direction: dir, Channel: ch, Leaf: LeafEvents}.String()
}

func Responses(tollboothID string, dir Direction, ch Channel) string {
	return Address{TollboothID: tollboothID, Direction: dir, Channel: ch, Leaf: LeafResponses}.String()
}

func State(tollboothID string, dir Direction, ch Channel) string {
	return Address{TollboothID: tollboothID, Direction: dir, Channel: ch, Leaf: LeafState}.String()
}

func CameraRequests(tollboothID string, dir Direction) string {
	return Address{TollboothID: tollboothID, Direction: dir, Channel: ChannelCamera, Leaf: LeafRequests}.String()
}

// TollPriceRequests is the flat address of the global pricing service.
const TollPriceRequests = prefix + "/requests/tollprice"

// Wildcard subscription filters. A single-level wildcard on tollbooth id and
// channel lets one subscription cover every tollbooth elastically.
const (
	FilterEntryCommands  = prefix + "/+/entry/+/commands"
	FilterExitCommands   = prefix + "/+/exit/+/commands"
	FilterEntryEvents    = prefix + "/+/entry/+/events"
	FilterExitEvents     = prefix + "/+/exit/+/events"
	FilterCameraRequests = prefix + "/+/+/camera/requests"
)
