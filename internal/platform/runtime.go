package platform

// RuntimeArtifact describes how to obtain and invoke the Miniconda
// installer for one platform.
type RuntimeArtifact struct {
	URL      string
	Filename string // artifact name under the local cache dir
	Archive  bool   // extracted in place instead of executed
}

const minicondaRepo = "https://repo.anaconda.com/miniconda/"

// RuntimeArtifactFor maps a descriptor onto the matching Miniconda
// artifact. Windows is published as x86_64 only; arm64 Windows machines
// run it under emulation, which is what the vendor supports.
func RuntimeArtifactFor(d Descriptor) RuntimeArtifact {
	switch d.OS {
	case Windows:
		return RuntimeArtifact{
			URL:      minicondaRepo + "Miniconda3-latest-Windows-x86_64.exe",
			Filename: "MinicondaInstaller.exe",
		}
	case MacOS:
		if d.Arch == ARM64 {
			return RuntimeArtifact{
				URL:      minicondaRepo + "Miniconda3-latest-MacOSX-arm64.sh",
				Filename: "MinicondaInstaller.sh",
			}
		}
		return RuntimeArtifact{
			URL:      minicondaRepo + "Miniconda3-latest-MacOSX-x86_64.sh",
			Filename: "MinicondaInstaller.sh",
		}
	default: // Linux
		if d.Arch == ARM64 {
			return RuntimeArtifact{
				URL:      minicondaRepo + "Miniconda3-latest-Linux-aarch64.sh",
				Filename: "MinicondaInstaller.sh",
			}
		}
		return RuntimeArtifact{
			URL:      minicondaRepo + "Miniconda3-latest-Linux-x86_64.sh",
			Filename: "MinicondaInstaller.sh",
		}
	}
}

// InstallCommand builds the unattended installer invocation for the
// downloaded artifact, targeting prefix.
func InstallCommand(d Descriptor, artifactPath, prefix string) []string {
	if d.OS == Windows {
		return []string{
			artifactPath,
			"/S",
			"/InstallationType=JustMe",
			"/AddToPath=0",
			"/RegisterPython=0",
			"/D=" + prefix,
		}
	}
	// Batch mode, install prefix.
	return []string{"bash", artifactPath, "-b", "-p", prefix}
}
