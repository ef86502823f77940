package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goatkit/goatlink/internal/models"
	"github.com/goatkit/goatlink/internal/protocol"
	"github.com/goatkit/goatlink/internal/service"
)

func TestIdentityHandler(t *testing.T) {
	t.Run("login succeeds and binds the user", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:5000")

		data := rig.login(t, conn, cctx, "alice")
		assert.Equal(t, "alice", data["username"])
		assert.Equal(t, "operator", data["user_type"])
		assert.NotEmpty(t, data["session_id"])

		require.True(t, cctx.IsAuthenticated())
		assert.Equal(t, service.UserRoom(cctx.UserID()), cctx.CurrentRoomID())

		bound, ok := rig.manager.ConnByUsername("alice")
		require.True(t, ok)
		assert.Same(t, conn, bound.(*mockConn))
	})

	t.Run("wrong password is rejected without detail", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:5001")

		rig.send(t, cctx, protocol.MsgLogin, map[string]string{
			"username": "alice",
			"password": "wrong-password",
		})
		msgType, resp := conn.lastResponse(t)
		assert.Equal(t, protocol.MsgError, msgType)
		assert.Equal(t, protocol.CodeBadCredentials, resp.Code)
		assert.False(t, cctx.IsAuthenticated())
	})

	t.Run("second login on the same connection conflicts", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:5002")
		rig.login(t, conn, cctx, "alice")

		rig.send(t, cctx, protocol.MsgLogin, map[string]string{
			"username": "bob",
			"password": "hunter2pass",
		})
		_, resp := conn.lastResponse(t)
		assert.Equal(t, protocol.CodeConflict, resp.Code)
		assert.Equal(t, "alice", cctx.Username())
	})

	t.Run("login while active session exists elsewhere conflicts", func(t *testing.T) {
		rig := newTestRig(t)
		conn1, cctx1 := rig.connect(t, "10.0.0.1:5003")
		rig.login(t, conn1, cctx1, "alice")

		conn2, cctx2 := rig.connect(t, "10.0.0.2:5003")
		rig.send(t, cctx2, protocol.MsgLogin, map[string]string{
			"username": "alice",
			"password": "hunter2pass",
		})
		_, resp := conn2.lastResponse(t)
		assert.Equal(t, protocol.CodeConflict, resp.Code)
	})

	t.Run("register then login", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:5004")

		rig.send(t, cctx, protocol.MsgRegister, map[string]string{
			"username":  "dave",
			"password":  "hunter2pass",
			"full_name": "Dave Test",
			"user_type": "expert",
		})
		msgType, resp := conn.lastResponse(t)
		require.Equal(t, protocol.MsgRegister, msgType)
		require.True(t, resp.OK())

		rig.login(t, conn, cctx, "dave")
		assert.Equal(t, "dave", cctx.Username())
	})

	t.Run("register duplicate username conflicts", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:5005")

		rig.send(t, cctx, protocol.MsgRegister, map[string]string{
			"username": "alice",
			"password": "hunter2pass",
		})
		_, resp := conn.lastResponse(t)
		assert.Equal(t, protocol.CodeConflict, resp.Code)
	})

	t.Run("logout tears down identity and session", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:5006")
		data := rig.login(t, conn, cctx, "alice")
		sessionID := data["session_id"].(string)

		rig.send(t, cctx, protocol.MsgLogout, nil)
		msgType, resp := conn.lastResponse(t)
		assert.Equal(t, protocol.MsgLogout, msgType)
		assert.True(t, resp.OK())

		assert.False(t, cctx.IsAuthenticated())
		assert.Empty(t, cctx.CurrentRoomID())
		_, ok := rig.manager.ConnByUsername("alice")
		assert.False(t, ok)

		_, err := rig.sessions.Get(sessionID)
		assert.Error(t, err)
	})

	t.Run("heartbeat requires authentication", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:5007")

		rig.send(t, cctx, protocol.MsgHeartbeat, nil)
		msgType, resp := conn.lastResponse(t)
		assert.Equal(t, protocol.MsgError, msgType)
		assert.Equal(t, protocol.CodeForbidden, resp.Code)
	})

	t.Run("heartbeat advances session activity", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:5008")
		data := rig.login(t, conn, cctx, "alice")
		sessionID := data["session_id"].(string)

		before, err := rig.sessions.Get(sessionID)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)
		rig.send(t, cctx, protocol.MsgHeartbeat, nil)
		_, resp := conn.lastResponse(t)
		require.True(t, resp.OK())

		after, err := rig.sessions.Get(sessionID)
		require.NoError(t, err)
		assert.True(t, after.LastActivity.After(before.LastActivity))
	})
}

func TestTicketHandler(t *testing.T) {
	createOrder := func(t *testing.T, rig *testRig, conn *mockConn, cctx *ClientContext) string {
		t.Helper()
		rig.send(t, cctx, protocol.MsgCreateWorkOrder, map[string]string{
			"title":       "Pump failure",
			"description": "Pressure drop on line 3",
			"priority":    "high",
		})
		msgType, resp := conn.lastResponse(t)
		require.Equal(t, protocol.MsgCreateWorkOrder, msgType)
		require.True(t, resp.OK(), "create failed: %s", resp.Message)
		return resp.Data["ticket_id"].(string)
	}

	joinOrder := func(t *testing.T, rig *testRig, conn *mockConn, cctx *ClientContext, ticketID string) {
		t.Helper()
		rig.send(t, cctx, protocol.MsgJoinWorkOrder, map[string]string{"ticket_id": ticketID})
		_, resp := conn.lastResponse(t)
		require.True(t, resp.OK(), "join failed: %s", resp.Message)
	}

	t.Run("create requires authentication", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:6000")

		rig.send(t, cctx, protocol.MsgCreateWorkOrder, map[string]string{"title": "x"})
		msgType, resp := conn.lastResponse(t)
		assert.Equal(t, protocol.MsgError, msgType)
		assert.Equal(t, protocol.CodeForbidden, resp.Code)
	})

	t.Run("create returns ticket id and open status", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:6001")
		rig.login(t, conn, cctx, "alice")

		ticketID := createOrder(t, rig, conn, cctx)
		assert.Regexp(t, `^WO-\d{8}-\d{4}$`, ticketID)

		order, err := rig.orders.GetByTicketID(ticketID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusOpen, order.Status)
	})

	t.Run("join moves the connection into the ticket room", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:6002")
		data := rig.login(t, conn, cctx, "alice")
		sessionID := data["session_id"].(string)

		ticketID := createOrder(t, rig, conn, cctx)
		joinOrder(t, rig, conn, cctx, ticketID)

		assert.Equal(t, ticketID, cctx.CurrentRoomID())
		assert.Equal(t, 1, rig.manager.RoomSize(ticketID))

		session, err := rig.sessions.Get(sessionID)
		require.NoError(t, err)
		assert.Equal(t, ticketID, session.RoomID)
	})

	t.Run("join notifies existing room members", func(t *testing.T) {
		rig := newTestRig(t)
		aliceConn, aliceCtx := rig.connect(t, "10.0.0.1:6003")
		rig.login(t, aliceConn, aliceCtx, "alice")
		ticketID := createOrder(t, rig, aliceConn, aliceCtx)
		joinOrder(t, rig, aliceConn, aliceCtx, ticketID)

		bobConn, bobCtx := rig.connect(t, "10.0.0.2:6003")
		rig.login(t, bobConn, bobCtx, "bob")
		joinOrder(t, rig, bobConn, bobCtx, ticketID)

		packets := aliceConn.takePackets(t)
		require.Len(t, packets, 1)
		assert.Equal(t, protocol.MsgServerEvent, packets[0].Type)

		var event protocol.Response
		require.NoError(t, packets[0].DecodeJSON(&event))
		assert.Equal(t, "participant_joined", event.Data["event"])
		assert.Equal(t, "bob", event.Data["username"])
	})

	t.Run("join unknown ticket returns not found", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:6004")
		rig.login(t, conn, cctx, "alice")

		rig.send(t, cctx, protocol.MsgJoinWorkOrder, map[string]string{"ticket_id": "WO-19700101-0001"})
		_, resp := conn.lastResponse(t)
		assert.Equal(t, protocol.CodeNotFound, resp.Code)
	})

	t.Run("leave returns the connection to its user room", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:6005")
		data := rig.login(t, conn, cctx, "alice")
		sessionID := data["session_id"].(string)

		ticketID := createOrder(t, rig, conn, cctx)
		joinOrder(t, rig, conn, cctx, ticketID)

		rig.send(t, cctx, protocol.MsgLeaveWorkOrder, nil)
		_, resp := conn.lastResponse(t)
		require.True(t, resp.OK(), "leave failed: %s", resp.Message)

		userRoom := service.UserRoom(cctx.UserID())
		assert.Equal(t, userRoom, cctx.CurrentRoomID())
		assert.Zero(t, rig.manager.RoomSize(ticketID))

		session, err := rig.sessions.Get(sessionID)
		require.NoError(t, err)
		assert.Equal(t, userRoom, session.RoomID)
	})

	t.Run("leave outside a ticket room is rejected", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:6006")
		rig.login(t, conn, cctx, "alice")

		rig.send(t, cctx, protocol.MsgLeaveWorkOrder, nil)
		_, resp := conn.lastResponse(t)
		assert.Equal(t, protocol.CodeBadRequest, resp.Code)
	})

	t.Run("status update walks the ladder and rejects regressions", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:6007")
		rig.login(t, conn, cctx, "alice")
		ticketID := createOrder(t, rig, conn, cctx)
		joinOrder(t, rig, conn, cctx, ticketID)

		rig.send(t, cctx, protocol.MsgUpdateWorkOrder, map[string]string{
			"ticket_id": ticketID,
			"status":    models.StatusProcessing,
		})
		_, resp := conn.lastResponse(t)
		require.True(t, resp.OK(), "update failed: %s", resp.Message)
		assert.Equal(t, models.StatusProcessing, resp.Data["status"])

		rig.send(t, cctx, protocol.MsgUpdateWorkOrder, map[string]string{
			"ticket_id": ticketID,
			"status":    models.StatusOpen,
		})
		_, resp = conn.lastResponse(t)
		assert.Equal(t, protocol.CodeBadRequest, resp.Code)

		order, err := rig.orders.GetByTicketID(ticketID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusProcessing, order.Status)
	})

	t.Run("status update notifies the room", func(t *testing.T) {
		rig := newTestRig(t)
		aliceConn, aliceCtx := rig.connect(t, "10.0.0.1:6008")
		rig.login(t, aliceConn, aliceCtx, "alice")
		ticketID := createOrder(t, rig, aliceConn, aliceCtx)
		joinOrder(t, rig, aliceConn, aliceCtx, ticketID)

		bobConn, bobCtx := rig.connect(t, "10.0.0.2:6008")
		rig.login(t, bobConn, bobCtx, "bob")
		joinOrder(t, rig, bobConn, bobCtx, ticketID)
		aliceConn.takePackets(t) // discard bob's join event

		rig.send(t, aliceCtx, protocol.MsgUpdateWorkOrder, map[string]string{
			"ticket_id": ticketID,
			"status":    models.StatusProcessing,
		})
		_, resp := aliceConn.lastResponse(t)
		require.True(t, resp.OK())

		packets := bobConn.takePackets(t)
		require.Len(t, packets, 1)
		assert.Equal(t, protocol.MsgNotification, packets[0].Type)
		var event protocol.Response
		require.NoError(t, packets[0].DecodeJSON(&event))
		assert.Equal(t, models.StatusProcessing, event.Data["status"])
	})

	t.Run("assignment addresses the expert by username", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:6009")
		rig.login(t, conn, cctx, "alice")
		ticketID := createOrder(t, rig, conn, cctx)

		rig.send(t, cctx, protocol.MsgUpdateWorkOrder, map[string]string{
			"ticket_id":   ticketID,
			"assigned_to": "bob",
		})
		_, resp := conn.lastResponse(t)
		require.True(t, resp.OK(), "assign failed: %s", resp.Message)
		assert.Equal(t, "bob", resp.Data["assigned_to"])

		bob, err := rig.users.GetByUsername("bob")
		require.NoError(t, err)
		order, err := rig.orders.GetByTicketID(ticketID)
		require.NoError(t, err)
		assert.Equal(t, bob.ID, order.AssignedTo)
	})

	t.Run("assignment to an unknown username is not found", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:6012")
		rig.login(t, conn, cctx, "alice")
		ticketID := createOrder(t, rig, conn, cctx)

		rig.send(t, cctx, protocol.MsgUpdateWorkOrder, map[string]string{
			"ticket_id":   ticketID,
			"assigned_to": "nobody",
		})
		_, resp := conn.lastResponse(t)
		assert.Equal(t, protocol.CodeNotFound, resp.Code)
	})

	t.Run("list returns the caller's orders", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:6010")
		rig.login(t, conn, cctx, "alice")
		createOrder(t, rig, conn, cctx)

		rig.send(t, cctx, protocol.MsgListWorkOrders, nil)
		msgType, resp := conn.lastResponse(t)
		require.Equal(t, protocol.MsgListWorkOrders, msgType)
		require.True(t, resp.OK())

		items, ok := resp.Data["work_orders"].([]interface{})
		require.True(t, ok)
		assert.Len(t, items, 1)
	})

	t.Run("delete is admin only", func(t *testing.T) {
		rig := newTestRig(t)
		aliceConn, aliceCtx := rig.connect(t, "10.0.0.1:6011")
		rig.login(t, aliceConn, aliceCtx, "alice")
		ticketID := createOrder(t, rig, aliceConn, aliceCtx)

		rig.send(t, aliceCtx, protocol.MsgDeleteWorkOrder, map[string]string{"ticket_id": ticketID})
		_, resp := aliceConn.lastResponse(t)
		assert.Equal(t, protocol.CodeForbidden, resp.Code)

		rootConn, rootCtx := rig.connect(t, "10.0.0.3:6011")
		rig.login(t, rootConn, rootCtx, "root")
		rig.send(t, rootCtx, protocol.MsgDeleteWorkOrder, map[string]string{"ticket_id": ticketID})
		_, resp = rootConn.lastResponse(t)
		require.True(t, resp.OK())

		_, err := rig.orders.GetByTicketID(ticketID)
		assert.Error(t, err)
	})
}

func TestStreamHandler(t *testing.T) {
	setupRoom := func(t *testing.T, rig *testRig) (*mockConn, *ClientContext, *mockConn, *ClientContext) {
		t.Helper()
		aliceConn, aliceCtx := rig.connect(t, "10.0.0.1:7000")
		rig.login(t, aliceConn, aliceCtx, "alice")
		rig.send(t, aliceCtx, protocol.MsgCreateWorkOrder, map[string]string{
			"title": "Camera feed drops", "description": "d", "priority": "normal",
		})
		_, resp := aliceConn.lastResponse(t)
		require.True(t, resp.OK())
		ticketID := resp.Data["ticket_id"].(string)

		rig.send(t, aliceCtx, protocol.MsgJoinWorkOrder, map[string]string{"ticket_id": ticketID})
		_, resp = aliceConn.lastResponse(t)
		require.True(t, resp.OK())

		bobConn, bobCtx := rig.connect(t, "10.0.0.2:7000")
		rig.login(t, bobConn, bobCtx, "bob")
		rig.send(t, bobCtx, protocol.MsgJoinWorkOrder, map[string]string{"ticket_id": ticketID})
		_, resp = bobConn.lastResponse(t)
		require.True(t, resp.OK())
		aliceConn.takePackets(t) // discard join event

		return aliceConn, aliceCtx, bobConn, bobCtx
	}

	t.Run("text relays verbatim to other members only", func(t *testing.T) {
		rig := newTestRig(t)
		aliceConn, _, bobConn, bobCtx := setupRoom(t, rig)

		rig.send(t, bobCtx, protocol.MsgText, map[string]string{"text": "checking the valve now"})

		packets := aliceConn.takePackets(t)
		require.Len(t, packets, 1)
		assert.Equal(t, protocol.MsgText, packets[0].Type)
		var payload map[string]string
		require.NoError(t, packets[0].DecodeJSON(&payload))
		assert.Equal(t, "checking the valve now", payload["text"])

		// The sender gets no echo and no response envelope.
		assert.Empty(t, bobConn.takePackets(t))
	})

	t.Run("relay requires a room", func(t *testing.T) {
		rig := newTestRig(t)
		conn, cctx := rig.connect(t, "10.0.0.1:7001")

		rig.send(t, cctx, protocol.MsgText, map[string]string{"text": "hello"})
		_, resp := conn.lastResponse(t)
		assert.Equal(t, protocol.CodeForbidden, resp.Code)
	})

	t.Run("empty payload is rejected and not relayed", func(t *testing.T) {
		rig := newTestRig(t)
		aliceConn, _, bobConn, bobCtx := setupRoom(t, rig)

		for _, msgType := range []protocol.MessageType{
			protocol.MsgText, protocol.MsgDeviceData, protocol.MsgFileTransfer,
		} {
			rig.router.Dispatch(bobCtx, &protocol.Packet{Type: msgType})
			_, resp := bobConn.lastResponse(t)
			assert.Equal(t, protocol.CodeBadRequest, resp.Code, "%s", msgType)
		}
		assert.Empty(t, aliceConn.takePackets(t))
	})

	t.Run("screenshot requires binary payload", func(t *testing.T) {
		rig := newTestRig(t)
		aliceConn, _, bobConn, bobCtx := setupRoom(t, rig)

		rig.send(t, bobCtx, protocol.MsgScreenshot, map[string]string{"format": "png"})
		_, resp := bobConn.lastResponse(t)
		assert.Equal(t, protocol.CodeBadRequest, resp.Code)
		assert.Empty(t, aliceConn.takePackets(t))
	})

	t.Run("media frame requires binary payload", func(t *testing.T) {
		rig := newTestRig(t)
		_, _, bobConn, bobCtx := setupRoom(t, rig)

		rig.send(t, bobCtx, protocol.MsgVideoFrame, map[string]int{"seq": 1})
		_, resp := bobConn.lastResponse(t)
		assert.Equal(t, protocol.CodeBadRequest, resp.Code)
	})

	t.Run("media frame is forwarded with its binary intact", func(t *testing.T) {
		rig := newTestRig(t)
		aliceConn, _, _, bobCtx := setupRoom(t, rig)

		frame := []byte{0x00, 0x01, 0x02, 0xFF, 0xFE}
		rig.router.Dispatch(bobCtx, &protocol.Packet{
			Type:   protocol.MsgVideoFrame,
			JSON:   []byte(`{"seq":7}`),
			Binary: frame,
		})

		// Media goes through the forward pool, so delivery is async.
		require.Eventually(t, func() bool {
			aliceConn.mu.Lock()
			defer aliceConn.mu.Unlock()
			return aliceConn.buf.Len() > 0
		}, time.Second, 5*time.Millisecond)

		packets := aliceConn.takePackets(t)
		require.Len(t, packets, 1)
		assert.Equal(t, protocol.MsgVideoFrame, packets[0].Type)
		assert.Equal(t, frame, packets[0].Binary)
	})

	t.Run("control frames relay synchronously", func(t *testing.T) {
		rig := newTestRig(t)
		aliceConn, _, _, bobCtx := setupRoom(t, rig)

		rig.send(t, bobCtx, protocol.MsgVideoControl, map[string]string{"action": "pause"})

		packets := aliceConn.takePackets(t)
		require.Len(t, packets, 1)
		assert.Equal(t, protocol.MsgVideoControl, packets[0].Type)
	})
}

func TestRouterUnhandledType(t *testing.T) {
	rig := newTestRig(t)
	conn, cctx := rig.connect(t, "10.0.0.1:8000")

	rig.router.Dispatch(cctx, &protocol.Packet{Type: protocol.MessageType(0x7FFF)})
	assert.Empty(t, conn.takePackets(t))
}
