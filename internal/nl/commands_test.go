package nl

import (
	"net"
	"testing"
	"time"

	"github.com/mdlayher/genetlink"
	"github.com/mdlayher/genetlink/genltest"
	"github.com/mdlayher/netlink"
	"golang.org/x/sys/unix"
)

const testFamilyID = 26

func testConn(t *testing.T, fn genltest.Func) *Conn {
	t.Helper()

	family := genetlink.Family{
		ID:      testFamilyID,
		Name:    unix.NL80211_GENL_NAME,
		Version: 1,
	}

	gc := genltest.Dial(genltest.ServeFamily(family, fn))

	c, err := newConn(gc)
	if err != nil {
		t.Fatalf("newConn: %v", err)
	}
	return c
}

func waitResult(t *testing.T, run func(onResult ResultFunc) (CommandID, error)) ([]genetlink.Message, error) {
	t.Helper()

	type outcome struct {
		msgs []genetlink.Message
		err  error
	}
	ch := make(chan outcome, 1)

	if _, err := run(func(msgs []genetlink.Message, err error) {
		ch <- outcome{msgs, err}
	}); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case o := <-ch:
		return o.msgs, o.err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for result")
		return nil, nil
	}
}

func TestAuthenticateEncodesExpectedCommand(t *testing.T) {
	bssid := net.HardwareAddr{0x02, 0, 0, 0, 0, 1}

	c := testConn(t, func(greq genetlink.Message, nreq netlink.Message) ([]genetlink.Message, error) {
		if greq.Header.Command != unix.NL80211_CMD_AUTHENTICATE {
			t.Fatalf("unexpected command: %d", greq.Header.Command)
		}

		ad, err := netlink.NewAttributeDecoder(greq.Data)
		if err != nil {
			t.Fatalf("NewAttributeDecoder: %v", err)
		}
		var gotIfindex uint32
		var gotMAC net.HardwareAddr
		for ad.Next() {
			switch ad.Type() {
			case unix.NL80211_ATTR_IFINDEX:
				gotIfindex = ad.Uint32()
			case unix.NL80211_ATTR_MAC:
				gotMAC = ad.Bytes()
			}
		}
		if err := ad.Err(); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if gotIfindex != 3 {
			t.Fatalf("unexpected ifindex: %d", gotIfindex)
		}
		if gotMAC.String() != bssid.String() {
			t.Fatalf("unexpected bssid: %v", gotMAC)
		}

		return []genetlink.Message{{Header: genetlink.Header{Command: unix.NL80211_CMD_AUTHENTICATE}}}, nil
	})
	defer c.Close()

	_, err := waitResult(t, func(onResult ResultFunc) (CommandID, error) {
		return c.Authenticate(3, bssid, []byte("testnet"), 2412, onResult)
	})
	if err != nil {
		t.Fatalf("unexpected result error: %v", err)
	}
}

func TestCancelDeliversErrCancelled(t *testing.T) {
	block := make(chan struct{})
	c := testConn(t, func(greq genetlink.Message, nreq netlink.Message) ([]genetlink.Message, error) {
		<-block
		return []genetlink.Message{{Header: genetlink.Header{Command: greq.Header.Command}}}, nil
	})
	defer c.Close()

	done := make(chan error, 1)
	id, err := c.Disconnect(3, 3, func(_ []genetlink.Message, err error) {
		done <- err
	})
	if err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	c.Cancel(id)
	close(block)

	select {
	case err := <-done:
		if err != ErrCancelled {
			t.Fatalf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for cancellation result")
	}
}
