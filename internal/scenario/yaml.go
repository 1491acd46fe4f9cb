package scenario

import "fmt"

// UnmarshalYAML decodes a command written as a single-key mapping, e.g.
// `set: [foo, bar]` or `get: foo`.
func (c *Command) UnmarshalYAML(unmarshal func(any) error) error {
	var raw map[string]any
	if err := unmarshal(&raw); err != nil {
		return fmt.Errorf("command must be a mapping of name to arguments: %w", err)
	}

	if len(raw) != 1 {
		return fmt.Errorf("command must have exactly one name, got %d", len(raw))
	}

	for name, args := range raw {
		*c = NewCommand(name, args)
	}

	return nil
}

func (c Command) MarshalYAML() (any, error) {
	args := c.Args
	if args == nil {
		args = []any{}
	}

	return map[string]any{c.Name: args}, nil
}

func (d Data) MarshalYAML() (any, error) {
	src, dst := d.Src, d.Dst
	if src == nil {
		src = []Command{}
	}

	if dst == nil {
		dst = []Command{}
	}

	return map[string]any{"src": src, "dst": dst}, nil
}

// UnmarshalYAML decodes a step. An explicit `resp: null` expects the absent
// reply, while a missing `resp` leaves the reply unchecked.
func (s *Step) UnmarshalYAML(unmarshal func(any) error) error {
	var fields struct {
		Req       Command `yaml:"req"`
		RespError bool    `yaml:"respError"`
	}
	if err := unmarshal(&fields); err != nil {
		return err
	}

	var raw map[string]any
	if err := unmarshal(&raw); err != nil {
		return err
	}

	s.Req = fields.Req
	s.RespError = fields.RespError
	s.Resp = nil
	if v, ok := raw["resp"]; ok {
		r := ReplyOf(v)
		s.Resp = &r
	}

	return nil
}

func (s Step) MarshalYAML() (any, error) {
	out := map[string]any{"req": s.Req}
	if s.Resp != nil {
		if s.Resp.Nil {
			out["resp"] = nil
		} else {
			out["resp"] = s.Resp.Value
		}
	}

	if s.RespError {
		out["respError"] = true
	}

	return out, nil
}
