package models

// RequestInfo is the accumulated service request for one conversation.
type RequestInfo struct {
	ServiceType          string   `json:"service_type"`
	Location             string   `json:"location"`
	Description          string   `json:"description"`
	Urgency              string   `json:"urgency"`
	SchedulingPreference string   `json:"scheduling_preference"`
	PreferredTimeDetails string   `json:"preferred_time_details"`
	LandmarkReferences   []string `json:"landmark_references"`
	ConfidenceScore      float64  `json:"confidence_score"`
	LocationConfidence   float64  `json:"location_confidence"`
}

// IsEmpty reports whether no field carries information.
func (r RequestInfo) IsEmpty() bool {
	return r.ServiceType == "" && r.Location == "" && r.Description == "" &&
		r.Urgency == "" && r.SchedulingPreference == "" && r.PreferredTimeDetails == "" &&
		len(r.LandmarkReferences) == 0 && r.ConfidenceScore == 0 && r.LocationConfidence == 0
}

// Extraction is the strictly parsed payload returned by the upstream extractor
// for a single turn. Codes are catalog codes and are checked by the validator.
type Extraction struct {
	ServiceCode          string   `json:"service_code,omitempty"`
	ZoneCode             string   `json:"zone_code,omitempty"`
	ServiceType          string   `json:"service_type,omitempty"`
	Location             string   `json:"location,omitempty"`
	Description          string   `json:"description,omitempty"`
	Urgency              string   `json:"urgency,omitempty"`
	SchedulingPreference string   `json:"scheduling_preference,omitempty"`
	PreferredTimeDetails string   `json:"preferred_time_details,omitempty"`
	LandmarkReferences   []string `json:"landmark_references,omitempty"`
	PriceEstimate        *float64 `json:"price_estimate,omitempty"`
	Confidence           float64  `json:"confidence"`
	LocationConfidence   float64  `json:"location_confidence,omitempty"`
}

// RequestInfo projects the extraction onto the accumulated request shape.
// Catalog codes take precedence over free-text service names.
func (e Extraction) RequestInfo() RequestInfo {
	serviceType := e.ServiceCode
	if serviceType == "" {
		serviceType = e.ServiceType
	}
	location := e.Location
	if location == "" {
		location = e.ZoneCode
	}

	var landmarks []string
	if len(e.LandmarkReferences) > 0 {
		landmarks = append(landmarks, e.LandmarkReferences...)
	}

	return RequestInfo{
		ServiceType:          serviceType,
		Location:             location,
		Description:          e.Description,
		Urgency:              e.Urgency,
		SchedulingPreference: e.SchedulingPreference,
		PreferredTimeDetails: e.PreferredTimeDetails,
		LandmarkReferences:   landmarks,
		ConfidenceScore:      e.Confidence,
		LocationConfidence:   e.LocationConfidence,
	}
}
