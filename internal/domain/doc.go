// Package domain models flood zones, water level readings, and the risk
// assessments derived from them.
//
// # Data Sources
//
// Readings come from the per-zone water level simulation (or real sensors
// publishing the same entity shape) as WaterLevelObserved entities. Citizen
// reports arrive as CrowdReport entities through the HTTP API. Both are
// normalized into an [Observation] before scoring, whatever their wire shape.
//
// # Units and Conventions
//
// Water levels are metres above the street surface. Coordinates are WGS-84
// decimal degrees; entity payloads order them [lng, lat] (GeoJSON) while the
// zone catalogue and this package use explicit Lat/Lng fields.
//
// A location of exactly (0, 0) is treated as missing. The operational region
// defaults to the Vietnam bounding box:
//
//	lat 8.5 .. 23.4, lng 102.1 .. 109.5
//
// # Severity
//
// The ordinal scale is Low < Moderate < High < Severe. Sensor readings map to
// it through absolute level bands, escalated by alert thresholds and rising
// trends; crowd reports map to it from a continuous score in [0, 1]. The zone
// catalogue spells Moderate as "medium", which [ParseSeverity] accepts.
//
// # Identity
//
// Sensor assessments are keyed by zone (one live record per zone). Crowd
// assessments are keyed by a name-based UUID of the source report, so
// reprocessing the same report overwrites rather than duplicates.
package domain
