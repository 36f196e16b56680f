package common

// Metric identifies the evaluation protocol a configuration targets.
type Metric string

const (
	// MetricVOC is the Pascal VOC evaluation protocol.
	MetricVOC Metric = "VOC"
	// MetricCOCO is the COCO evaluation protocol.
	MetricCOCO Metric = "COCO"
)

// Valid reports whether the metric names a supported protocol.
func (m Metric) Valid() bool {
	switch m {
	case MetricVOC, MetricCOCO:
		return true
	}
	return false
}

// MapType selects how average precision is integrated over recall.
type MapType string

const (
	// MapType11Point samples precision at eleven fixed recall points.
	MapType11Point MapType = "11point"
	// MapTypeIntegral integrates precision over the full recall curve.
	MapTypeIntegral MapType = "integral"
)

// Valid reports whether the map type names a supported integration.
func (m MapType) Valid() bool {
	switch m {
	case MapType11Point, MapTypeIntegral:
		return true
	}
	return false
}

// NormType selects the normalization layer used inside a backbone.
type NormType string

const (
	// NormTypeBN is per-device batch normalization.
	NormTypeBN NormType = "bn"
	// NormTypeSyncBN synchronizes batch statistics across devices.
	NormTypeSyncBN NormType = "sync_bn"
	// NormTypeAffineChannel is a fixed per-channel affine transform.
	NormTypeAffineChannel NormType = "affine_channel"
)

// Valid reports whether the norm type names a supported layer.
func (n NormType) Valid() bool {
	switch n {
	case NormTypeBN, NormTypeSyncBN, NormTypeAffineChannel:
		return true
	}
	return false
}
