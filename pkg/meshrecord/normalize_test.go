package meshrecord

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC)

func textPacket() RawPacket {
	return RawPacket{
		"from":     float64(0x12345678),
		"to":       float64(-1),
		"rxTime":   float64(1724840000),
		"hopLimit": float64(3),
		"decoded": map[string]any{
			"portnum": "TEXT_MESSAGE_APP",
			"text":    "hi",
		},
	}
}

func TestNormalizeTextMessage(t *testing.T) {
	t.Run("derives from_id and broadcast to_id", func(t *testing.T) {
		rec, err := Normalize(textPacket(), testNow)
		require.NoError(t, err)

		msg, ok := rec.(*TextMessage)
		require.True(t, ok)
		assert.Equal(t, "!12345678", msg.FromID)
		assert.Equal(t, BroadcastID, msg.ToID)
		assert.Equal(t, "hi", msg.Text)
		assert.Equal(t, int64(-1), msg.ToNum)
		assert.NoError(t, msg.Validate())
	})

	t.Run("unsigned broadcast destination resolves to broadcast id", func(t *testing.T) {
		p := textPacket()
		p["to"] = float64(0xFFFFFFFF)
		rec, err := Normalize(p, testNow)
		require.NoError(t, err)
		assert.Equal(t, BroadcastID, rec.(*TextMessage).ToID)
	})

	t.Run("direct destination derives node id", func(t *testing.T) {
		p := textPacket()
		p["to"] = float64(0xABCDEF01)
		rec, err := Normalize(p, testNow)
		require.NoError(t, err)
		assert.Equal(t, "!abcdef01", rec.(*TextMessage).ToID)
	})

	t.Run("explicit fromId wins over derivation", func(t *testing.T) {
		p := textPacket()
		p["fromId"] = "!12345678"
		rec, err := Normalize(p, testNow)
		require.NoError(t, err)
		assert.Equal(t, "!12345678", rec.(*TextMessage).FromID)
	})

	t.Run("null fromId is treated as absent", func(t *testing.T) {
		p := textPacket()
		p["fromId"] = nil
		rec, err := Normalize(p, testNow)
		require.NoError(t, err)
		assert.Equal(t, "!12345678", rec.(*TextMessage).FromID)
	})

	t.Run("missing text fails", func(t *testing.T) {
		p := textPacket()
		delete(p["decoded"].(map[string]any), "text")
		_, err := Normalize(p, testNow)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "decoded.text")
	})

	t.Run("missing to fails", func(t *testing.T) {
		p := textPacket()
		delete(p, "to")
		_, err := Normalize(p, testNow)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "to")
	})
}

func TestNormalizeMetrics(t *testing.T) {
	t.Run("absent snr and rssi stay nil", func(t *testing.T) {
		rec, err := Normalize(textPacket(), testNow)
		require.NoError(t, err)
		msg := rec.(*TextMessage)
		assert.Nil(t, msg.Metrics.RxSNR)
		assert.Nil(t, msg.Metrics.RxRSSI)
	})

	t.Run("present snr and rssi are carried", func(t *testing.T) {
		p := textPacket()
		p["rxSnr"] = 5.25
		p["rxRssi"] = float64(-80)
		rec, err := Normalize(p, testNow)
		require.NoError(t, err)
		msg := rec.(*TextMessage)
		require.NotNil(t, msg.Metrics.RxSNR)
		assert.Equal(t, 5.25, *msg.Metrics.RxSNR)
		require.NotNil(t, msg.Metrics.RxRSSI)
		assert.Equal(t, -80, *msg.Metrics.RxRSSI)
	})

	t.Run("missing hopLimit defaults to 3", func(t *testing.T) {
		p := textPacket()
		delete(p, "hopLimit")
		rec, err := Normalize(p, testNow)
		require.NoError(t, err)
		assert.Equal(t, 3, rec.(*TextMessage).Metrics.HopLimit)
	})

	t.Run("missing rxTime fails", func(t *testing.T) {
		p := textPacket()
		delete(p, "rxTime")
		_, err := Normalize(p, testNow)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rxTime")
	})
}

func nodeInfoPacket() RawPacket {
	return RawPacket{
		"from":   float64(0x12345678),
		"rxTime": float64(1724840000),
		"decoded": map[string]any{
			"portnum": "NODEINFO_APP",
			"user": map[string]any{
				"id":        "!12345678",
				"longName":  "Base Camp",
				"shortName": "BC",
				"hwModel":   "TBEAM",
			},
		},
	}
}

func TestNormalizeNodeInfo(t *testing.T) {
	t.Run("maps user fields", func(t *testing.T) {
		rec, err := Normalize(nodeInfoPacket(), testNow)
		require.NoError(t, err)

		node, ok := rec.(*NodeInfo)
		require.True(t, ok)
		assert.Equal(t, "!12345678", node.User.ID)
		assert.Equal(t, "Base Camp", node.User.LongName)
		assert.Equal(t, "BC", node.User.ShortName)
		assert.Equal(t, "TBEAM", node.User.HWModel)
		assert.NoError(t, node.Validate())
	})

	t.Run("missing longName fails", func(t *testing.T) {
		p := nodeInfoPacket()
		delete(p["decoded"].(map[string]any)["user"].(map[string]any), "longName")
		_, err := Normalize(p, testNow)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "longName")
	})

	t.Run("missing secondary fields are tolerated", func(t *testing.T) {
		p := nodeInfoPacket()
		user := p["decoded"].(map[string]any)["user"].(map[string]any)
		delete(user, "shortName")
		delete(user, "hwModel")
		rec, err := Normalize(p, testNow)
		require.NoError(t, err)
		assert.NoError(t, rec.Validate())
	})
}

func telemetryPacket(payload map[string]any) RawPacket {
	return RawPacket{
		"from":   float64(0x12345678),
		"rxTime": float64(1724840000),
		"decoded": map[string]any{
			"portnum":   "TELEMETRY_APP",
			"telemetry": payload,
		},
	}
}

func TestNormalizeTelemetry(t *testing.T) {
	t.Run("deviceMetrics routes to device telemetry", func(t *testing.T) {
		p := telemetryPacket(map[string]any{
			"deviceMetrics": map[string]any{
				"batteryLevel":       float64(85),
				"voltage":            4.01,
				"channelUtilization": 3.5,
				"airUtilTx":          1.2,
				"uptimeSeconds":      float64(86400),
			},
		})
		rec, err := Normalize(p, testNow)
		require.NoError(t, err)

		dev, ok := rec.(*DeviceTelemetry)
		require.True(t, ok)
		assert.Equal(t, 85, dev.DeviceMetrics.BatteryLevel)
		require.NotNil(t, dev.DeviceMetrics.ChannelUtilization)
		assert.Equal(t, 3.5, *dev.DeviceMetrics.ChannelUtilization)
		assert.NoError(t, dev.Validate())
	})

	t.Run("absent channelUtilization stays nil", func(t *testing.T) {
		p := telemetryPacket(map[string]any{
			"deviceMetrics": map[string]any{
				"batteryLevel":  float64(85),
				"voltage":       4.01,
				"airUtilTx":     1.2,
				"uptimeSeconds": float64(86400),
			},
		})
		rec, err := Normalize(p, testNow)
		require.NoError(t, err)
		assert.Nil(t, rec.(*DeviceTelemetry).DeviceMetrics.ChannelUtilization)
	})

	t.Run("localStats routes to network telemetry", func(t *testing.T) {
		p := telemetryPacket(map[string]any{
			"localStats": map[string]any{
				"numOnlineNodes": float64(4),
				"numTotalNodes":  float64(12),
				"numPacketsTx":   float64(100),
				"numRxDupe":      float64(7),
			},
		})
		rec, err := Normalize(p, testNow)
		require.NoError(t, err)

		net, ok := rec.(*NetworkTelemetry)
		require.True(t, ok)
		assert.Equal(t, 4, net.LocalStats.NumOnlineNodes)
		require.NotNil(t, net.LocalStats.NumRxDupe)
		assert.Equal(t, int64(7), *net.LocalStats.NumRxDupe)
		assert.Nil(t, net.LocalStats.NumTxRelay)
		assert.NoError(t, net.Validate())
	})

	t.Run("environmentMetrics routes to environment telemetry", func(t *testing.T) {
		p := telemetryPacket(map[string]any{
			"environmentMetrics": map[string]any{
				"temperature":        21.5,
				"relativeHumidity":   40.2,
				"barometricPressure": 1013.2,
			},
		})
		rec, err := Normalize(p, testNow)
		require.NoError(t, err)

		env, ok := rec.(*EnvironmentTelemetry)
		require.True(t, ok)
		assert.Equal(t, 21.5, env.EnvironmentMetrics.Temperature)
		assert.NoError(t, env.Validate())
	})

	t.Run("priority is carried when present", func(t *testing.T) {
		p := telemetryPacket(map[string]any{
			"environmentMetrics": map[string]any{"temperature": 21.5},
		})
		p["priority"] = "BACKGROUND"
		rec, err := Normalize(p, testNow)
		require.NoError(t, err)
		require.NotNil(t, rec.(*EnvironmentTelemetry).Priority)
		assert.Equal(t, "BACKGROUND", *rec.(*EnvironmentTelemetry).Priority)
	})

	t.Run("unrecognized telemetry payload fails", func(t *testing.T) {
		p := telemetryPacket(map[string]any{"somethingElse": map[string]any{}})
		_, err := Normalize(p, testNow)
		assert.ErrorIs(t, err, ErrUnknownTelemetry)
	})

	t.Run("unknown portnum fails", func(t *testing.T) {
		p := textPacket()
		p["decoded"].(map[string]any)["portnum"] = "POSITION_APP"
		_, err := Normalize(p, testNow)
		assert.ErrorIs(t, err, ErrUnknownPort)
	})
}

func TestNormalizeTimestamp(t *testing.T) {
	rec, err := Normalize(textPacket(), testNow)
	require.NoError(t, err)

	parsed, err := ParseTimestamp(rec.(*TextMessage).Timestamp)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(testNow))
}
