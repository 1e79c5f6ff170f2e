package model

import "time"

// DateLayout is the wire format of date_of_visit.
const DateLayout = "2006-01-02"

// ConsultationRequest is built fresh for every submission and only exists to
// be serialized into the POST /api body.
type ConsultationRequest struct {
	PatientName string `json:"patient_name" validate:"required" binding:"required"`
	DateOfVisit string `json:"date_of_visit" validate:"required,datetime=2006-01-02" binding:"required,datetime=2006-01-02"`
	Notes       string `json:"notes" validate:"required" binding:"required"`
}

func NewConsultationRequest(patientName string, visit time.Time, notes string) ConsultationRequest {
	return ConsultationRequest{
		PatientName: patientName,
		DateOfVisit: visit.Format(DateLayout),
		Notes:       notes,
	}
}

// VisitDate parses DateOfVisit.
func (r ConsultationRequest) VisitDate() (time.Time, error) {
	return time.Parse(DateLayout, r.DateOfVisit)
}
