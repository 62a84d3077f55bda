package models

type Patient struct {
	PatientID string `json:"patient_id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
}
