package models

type Service struct {
	Code          string   `json:"code" yaml:"code"`
	Name          string   `json:"name" yaml:"name"`
	Description   string   `json:"description" yaml:"description"`
	Synonyms      []string `json:"synonyms" yaml:"synonyms"`
	MinPrice      float64  `json:"min_price" yaml:"min_price"`
	MaxPrice      float64  `json:"max_price" yaml:"max_price"`
	AvgRating     float64  `json:"avg_rating" yaml:"avg_rating"`
	TotalBookings int      `json:"total_bookings" yaml:"total_bookings"`
}

// BasePrice is the midpoint of the advertised price band.
func (s Service) BasePrice() float64 {
	if s.MaxPrice <= 0 {
		return s.MinPrice
	}
	return (s.MinPrice + s.MaxPrice) / 2
}

type ZoneLevel string

const (
	ZoneCountry  ZoneLevel = "country"
	ZoneRegion   ZoneLevel = "region"
	ZoneCity     ZoneLevel = "city"
	ZoneDistrict ZoneLevel = "district"
)

// Zone is one node of the country > region > city > district tree.
type Zone struct {
	Code       string    `json:"code" yaml:"code"`
	Name       string    `json:"name" yaml:"name"`
	ParentCode string    `json:"parent_code,omitempty" yaml:"parent_code"`
	Level      ZoneLevel `json:"level" yaml:"level"`
	Latitude   float64   `json:"latitude" yaml:"latitude"`
	Longitude  float64   `json:"longitude" yaml:"longitude"`
	RadiusKm   float64   `json:"radius_km" yaml:"radius_km"`
}

// Availability links a service to a zone it is offered in.
type Availability struct {
	ServiceCode        string  `json:"service_code" yaml:"service_code"`
	ZoneCode           string  `json:"zone_code" yaml:"zone_code"`
	AvgResponseMinutes float64 `json:"avg_response_minutes" yaml:"avg_response_minutes"`
	Active             bool    `json:"active" yaml:"active"`
}
