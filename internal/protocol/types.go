// Package protocol implements the goatlink wire protocol: a framed
// binary+JSON message format carried over TCP. Each frame has a fixed
// 10-byte big-endian header (type, JSON length, binary length) followed
// by a UTF-8 JSON segment and an opaque binary segment.
package protocol

import "fmt"

// MessageType selects both routing and payload schema for a packet.
type MessageType uint16

// Message type catalog. The numeric values are wire format and must not
// be reordered.
const (
	// Identity family.
	MsgLogin     MessageType = 0x0001
	MsgRegister  MessageType = 0x0002
	MsgLogout    MessageType = 0x0003
	MsgHeartbeat MessageType = 0x0004

	// Ticketing family.
	MsgCreateWorkOrder MessageType = 0x0010
	MsgJoinWorkOrder   MessageType = 0x0011
	MsgLeaveWorkOrder  MessageType = 0x0012
	MsgUpdateWorkOrder MessageType = 0x0013
	MsgListWorkOrders  MessageType = 0x0014
	MsgDeleteWorkOrder MessageType = 0x0015

	// Chat/media family.
	MsgText          MessageType = 0x0020
	MsgDeviceData    MessageType = 0x0021
	MsgFileTransfer  MessageType = 0x0022
	MsgScreenshot    MessageType = 0x0023
	MsgVideoFrame    MessageType = 0x0024
	MsgAudioFrame    MessageType = 0x0025
	MsgVideoControl  MessageType = 0x0026
	MsgAudioControl  MessageType = 0x0027
	MsgControl       MessageType = 0x0028
	MsgDeviceControl MessageType = 0x0029
	MsgSystemControl MessageType = 0x002A

	// Server-originated types.
	MsgServerEvent  MessageType = 0x0030
	MsgError        MessageType = 0x0031
	MsgNotification MessageType = 0x0032
)

var messageTypeNames = map[MessageType]string{
	MsgLogin:           "LOGIN",
	MsgRegister:        "REGISTER",
	MsgLogout:          "LOGOUT",
	MsgHeartbeat:       "HEARTBEAT",
	MsgCreateWorkOrder: "CREATE_WORKORDER",
	MsgJoinWorkOrder:   "JOIN_WORKORDER",
	MsgLeaveWorkOrder:  "LEAVE_WORKORDER",
	MsgUpdateWorkOrder: "UPDATE_WORKORDER",
	MsgListWorkOrders:  "LIST_WORKORDERS",
	MsgDeleteWorkOrder: "DELETE_WORKORDER",
	MsgText:            "TEXT",
	MsgDeviceData:      "DEVICE_DATA",
	MsgFileTransfer:    "FILE_TRANSFER",
	MsgScreenshot:      "SCREENSHOT",
	MsgVideoFrame:      "VIDEO_FRAME",
	MsgAudioFrame:      "AUDIO_FRAME",
	MsgVideoControl:    "VIDEO_CONTROL",
	MsgAudioControl:    "AUDIO_CONTROL",
	MsgControl:         "CONTROL",
	MsgDeviceControl:   "DEVICE_CONTROL",
	MsgSystemControl:   "SYSTEM_CONTROL",
	MsgServerEvent:     "SERVER_EVENT",
	MsgError:           "ERROR",
	MsgNotification:    "NOTIFICATION",
}

// String returns the catalog name for the type, or a hex form for
// unknown values.
func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%04X)", uint16(t))
}

// IsMediaFrame reports whether the type carries a real-time media frame
// that should be forwarded off the read loop.
func (t MessageType) IsMediaFrame() bool {
	return t == MsgVideoFrame || t == MsgAudioFrame
}
