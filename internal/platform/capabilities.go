package platform

// Provider bundles the trait implementations the kernel wires into one
// platform. A nil FileSystem or Database shows up as a false Capabilities
// flag rather than a panic; Storage and Network have no flag of their own.
type Provider struct {
	FileSystem FileSystem
	Storage    Storage
	Database   Database
	Network    Network

	HasBackgroundTasks bool
	MaxFileSize        *int64
}

// Detect reports which traits an active Provider actually supports.
func (p Provider) Detect() Capabilities {
	return Capabilities{
		HasFilesystem:      p.FileSystem != nil,
		HasDatabase:        p.Database != nil,
		HasBackgroundTasks: p.HasBackgroundTasks,
		MaxFileSize:        p.MaxFileSize,
	}
}
