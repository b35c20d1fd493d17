package models

// ExportJob is the message published for every accepted export request.
// It deliberately carries no job identifier.
type ExportJob struct {
	PlaylistID  string `json:"playlistId"`
	TargetEmail string `json:"targetEmail"`
}

// PlaylistSnapshot is the playlist as the worker read it, not as it was when
// the export was requested.
type PlaylistSnapshot struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Songs []Song `json:"songs"`
}
