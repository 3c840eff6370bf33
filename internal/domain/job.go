package domain

import "encoding/json"

// Job is the serialized Location payload pushed onto the work queue during
// enqueue and consumed exactly once by one worker per cycle.
type Job struct {
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// NewJob builds a Job from a catalog Location.
func NewJob(loc Location) Job {
	return Job{City: loc.City, Latitude: loc.Latitude, Longitude: loc.Longitude}
}

// Location converts the job back into the Location it was created from.
func (j Job) Location() Location {
	return Location{City: j.City, Latitude: j.Latitude, Longitude: j.Longitude}
}

// Marshal serializes the job for LPUSH onto the broker's queue.
func (j Job) Marshal() ([]byte, error) {
	return json.Marshal(j)
}

// UnmarshalJob parses a job payload popped off the queue.
func UnmarshalJob(data []byte) (Job, error) {
	var j Job
	err := json.Unmarshal(data, &j)
	return j, err
}
