package session

import "github.com/k0ucp/ucpbridge/internal/frame"

// sendFrame serializes one frame write behind the egress lock — "the
// writer owns the egress lock" (§4.3 "Write").
func (s *Session) sendFrame(typ frame.PayloadType, payload []byte) error {
	s.egressMu.Lock()
	defer s.egressMu.Unlock()

	conn := s.currentConn()
	if conn == nil {
		return ErrChannelClosed
	}
	_, err := conn.Write(frame.Encode(typ, payload))
	return err
}

// SendParameter encodes and writes a PV(h→u) frame (§4.3
// "send_parameter(address, value)").
func (s *Session) SendParameter(address string, value float64) error {
	pv := frame.ParamValue{Direction: frame.HostToUnit, Path: address, Value: float32(value)}
	return s.sendFrame(frame.TypeParamVal, frame.EncodeParamValue(pv))
}

// SendParameterBool is send_parameter with value constrained to {0.0,
// 1.0} (§4.3 "send_parameter_bool").
func (s *Session) SendParameterBool(address string, on bool) error {
	value := 0.0
	if on {
		value = 1.0
	}
	return s.SendParameter(address, value)
}

func (s *Session) sendKeepAlive() error {
	return s.sendFrame(frame.TypeKeepAlive, nil)
}
