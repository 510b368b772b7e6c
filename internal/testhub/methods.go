package testhub

import (
	"strings"

	signalr "gitlab.com/techviking/signalr/v3"
)

type method struct {
	name      string
	streaming bool
	call      func(hc *hubConn, id string, args []signalr.Payload) error
}

var methods = map[string]method{}

func register(m method) {
	methods[strings.ToLower(m.name)] = m
}

func first(args []signalr.Payload) signalr.Payload {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func firstString(args []signalr.Payload) string {
	var s string
	if p := first(args); p != nil {
		p.Decode(&s)
	}
	return s
}

func init() {
	register(method{name: "Echo", call: func(hc *hubConn, id string, args []signalr.Payload) error {
		return hc.complete(id, first(args), true)
	}})

	register(method{name: "EchoComplexObject", call: func(hc *hubConn, id string, args []signalr.Payload) error {
		return hc.complete(id, first(args), true)
	}})

	register(method{name: "ThrowException", call: func(hc *hubConn, id string, args []signalr.Payload) error {
		return hc.fail(id, firstString(args))
	}})

	register(method{name: "InvokeWithString", call: func(hc *hubConn, id string, args []signalr.Payload) error {
		if err := hc.push("Message", first(args)); err != nil {
			return err
		}
		return hc.complete(id, nil, false)
	}})

	register(method{name: "SendCustomObject", call: func(hc *hubConn, id string, args []signalr.Payload) error {
		if err := hc.push("CustomObject", first(args)); err != nil {
			return err
		}
		return hc.complete(id, nil, false)
	}})

	register(method{name: "CloseWithError", call: func(hc *hubConn, id string, args []signalr.Payload) error {
		return hc.write(signalr.CloseMessage{Error: firstString(args)})
	}})

	register(method{name: "Stream", streaming: true, call: func(hc *hubConn, id string, args []signalr.Payload) error {
		return hc.stream(id, []interface{}{"a", "b", "c"}, "")
	}})

	register(method{name: "EmptyStream", streaming: true, call: func(hc *hubConn, id string, args []signalr.Payload) error {
		return hc.stream(id, nil, "")
	}})

	register(method{name: "StreamThrowException", streaming: true, call: func(hc *hubConn, id string, args []signalr.Payload) error {
		return hc.stream(id, nil, firstString(args))
	}})
}
