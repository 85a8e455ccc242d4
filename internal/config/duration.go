package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// jsonDuration reads "90s"-style strings or integer nanoseconds and writes
// strings, so JSON config files match TOML and the environment.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
	case float64:
		*d = jsonDuration(time.Duration(x))
	case string:
		parsed, err := time.ParseDuration(x)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", x, err)
		}
		*d = jsonDuration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

func (d jsonDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

type gatewayJSON struct {
	gatewayPlain
	AdminSessionTTL jsonDuration `json:"adminSessionTtl"`
	SendTimeout     jsonDuration `json:"sendTimeout"`
}

type gatewayPlain GatewayConfig

func (g *GatewayConfig) UnmarshalJSON(data []byte) error {
	aux := gatewayJSON{gatewayPlain(*g), jsonDuration(g.AdminSessionTTL), jsonDuration(g.SendTimeout)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*g = GatewayConfig(aux.gatewayPlain)
	g.AdminSessionTTL = time.Duration(aux.AdminSessionTTL)
	g.SendTimeout = time.Duration(aux.SendTimeout)
	return nil
}

func (g GatewayConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(gatewayJSON{gatewayPlain(g), jsonDuration(g.AdminSessionTTL), jsonDuration(g.SendTimeout)})
}

type reconnectJSON struct {
	reconnectPlain
	Initial jsonDuration `json:"initial"`
	Max     jsonDuration `json:"max"`
}

type reconnectPlain ReconnectConfig

func (r *ReconnectConfig) UnmarshalJSON(data []byte) error {
	aux := reconnectJSON{reconnectPlain(*r), jsonDuration(r.Initial), jsonDuration(r.Max)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = ReconnectConfig(aux.reconnectPlain)
	r.Initial = time.Duration(aux.Initial)
	r.Max = time.Duration(aux.Max)
	return nil
}

func (r ReconnectConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(reconnectJSON{reconnectPlain(r), jsonDuration(r.Initial), jsonDuration(r.Max)})
}

type timelineJSON struct {
	timelinePlain
	Retention     jsonDuration `json:"retention"`
	PruneInterval jsonDuration `json:"pruneInterval"`
}

type timelinePlain TimelineConfig

func (t *TimelineConfig) UnmarshalJSON(data []byte) error {
	aux := timelineJSON{timelinePlain(*t), jsonDuration(t.Retention), jsonDuration(t.PruneInterval)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = TimelineConfig(aux.timelinePlain)
	t.Retention = time.Duration(aux.Retention)
	t.PruneInterval = time.Duration(aux.PruneInterval)
	return nil
}

func (t TimelineConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(timelineJSON{timelinePlain(t), jsonDuration(t.Retention), jsonDuration(t.PruneInterval)})
}
