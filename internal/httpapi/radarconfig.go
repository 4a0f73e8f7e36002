package httpapi

import (
	"github.com/skywave-radar/coverage/internal/coverage"
	"github.com/skywave-radar/coverage/internal/geom"
	"github.com/skywave-radar/coverage/internal/radarphys"
)

// RadarConfig is the wire shape for a radar definition (spec.md §6's radar
// configuration: name, location, antenna height AGL, transmit power, gain,
// frequency, system loss, detection SNR threshold, optional azimuth/
// elevation sector bounds).
type RadarConfig struct {
	Name           string  `json:"name"`
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	GroundAltM     float64 `json:"ground_alt_m"`
	AntennaHeightM float64 `json:"antenna_height_agl_m"`
	TxPowerW       float64 `json:"tx_power_w"`
	GainDBi        float64 `json:"gain_dbi"`
	FreqMHz        float64 `json:"freq_mhz"`
	LossDB         float64 `json:"loss_db"`
	SNRMinDB       float64 `json:"snr_min_db"`
	KFactor        float64 `json:"k_factor,omitempty"`
	AzimuthMinDeg  float64 `json:"azimuth_min_deg,omitempty"`
	AzimuthMaxDeg  float64 `json:"azimuth_max_deg,omitempty"`
	HasAzSector    bool    `json:"has_azimuth_sector,omitempty"`
	ElevMinDeg     float64 `json:"elevation_min_deg,omitempty"`
	ElevMaxDeg     float64 `json:"elevation_max_deg,omitempty"`
	HasElSector    bool    `json:"has_elevation_sector,omitempty"`
}

// ToRadar converts the wire config into the evaluator's Radar type.
func (rc RadarConfig) ToRadar() coverage.Radar {
	return coverage.Radar{
		Name:        rc.Name,
		Location:    geom.LatLon{Lat: rc.Lat, Lon: rc.Lon, Alt: rc.GroundAltM},
		HeightAMSLM: rc.GroundAltM + rc.AntennaHeightM,
		Phys: radarphys.Params{
			TxPowerW: rc.TxPowerW,
			GainDBi:  rc.GainDBi,
			FreqMHz:  rc.FreqMHz,
			LossDB:   rc.LossDB,
			SNRMinDB: rc.SNRMinDB,
		},
		KFactor:     rc.KFactor,
		AzimuthMin:  rc.AzimuthMinDeg,
		AzimuthMax:  rc.AzimuthMaxDeg,
		HasAzSector: rc.HasAzSector,
		ElevMinDeg:  rc.ElevMinDeg,
		ElevMaxDeg:  rc.ElevMaxDeg,
		HasElSector: rc.HasElSector,
	}
}
