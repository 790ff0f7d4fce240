package language_models

// floatParam reads a numeric sampler parameter. TOML and YAML decoders
// produce int64 or float64 depending on how the value was written.
func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// intParam reads an integer sampler parameter.
func intParam(params map[string]any, key string) (int, bool) {
	f, ok := floatParam(params, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}
