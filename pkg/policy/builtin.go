package policy

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		sourceIntegrityPolicy(),
		sourceTransportPolicy(),
		sourceSchemePolicy(),
	}
}

// sourceIntegrityPolicy requires a digest for every archive that is built or linked.
func sourceIntegrityPolicy() Policy {
	return Policy{
		Name:        "source-integrity",
		Description: "Requires a checksum for downloaded archives",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"integrity", "supply-chain"},
		Rego: `package fftwprov.policies.integrity

import rego.v1

# Source tarballs are compiled, so an unverified tarball never passes.
deny contains violation if {
	input.platform == "unix"
	not input.checksum.present
	violation := {
		"message": sprintf("source archive %s has no checksum configured", [input.source.url]),
		"severity": "error",
		"remediation": "set unix.checksum to the published digest of the tarball",
	}
}

deny contains violation if {
	input.platform == "windows"
	not input.checksum.present
	not input.strict
	violation := {
		"message": sprintf("binary archive %s has no checksum configured; its contents are not verified", [input.source.url]),
		"severity": "warning",
		"remediation": "set windows.checksum to pin the prebuilt DLL archive",
	}
}

deny contains violation if {
	input.platform == "windows"
	not input.checksum.present
	input.strict
	violation := {
		"message": sprintf("binary archive %s has no checksum configured and strict mode is on", [input.source.url]),
		"severity": "error",
		"remediation": "set windows.checksum to pin the prebuilt DLL archive",
	}
}

deny contains violation if {
	input.checksum.present
	input.checksum.algorithm == "md5"
	violation := {
		"message": "md5 detects corruption but is not collision resistant",
		"severity": "info",
		"remediation": "prefer a sha256 digest when the publisher provides one",
	}
}
`,
	}
}

// sourceTransportPolicy reports plain-text transports.
func sourceTransportPolicy() Policy {
	return Policy{
		Name:        "source-transport",
		Description: "Reports archives fetched over unencrypted transports",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"transport"},
		Rego: `package fftwprov.policies.transport

import rego.v1

plaintext := {"http", "ftp"}

deny contains violation if {
	plaintext[input.source.scheme]
	input.checksum.present
	violation := {
		"message": sprintf("archive is fetched over plain %s; integrity relies on the checksum", [input.source.scheme]),
		"severity": "info",
	}
}

deny contains violation if {
	plaintext[input.source.scheme]
	not input.checksum.present
	violation := {
		"message": sprintf("archive is fetched over plain %s without a checksum", [input.source.scheme]),
		"severity": "warning",
		"remediation": "use an https or sftp mirror, or configure a checksum",
	}
}
`,
	}
}

// sourceSchemePolicy rejects locations no fetcher can serve.
func sourceSchemePolicy() Policy {
	return Policy{
		Name:        "source-scheme",
		Description: "Rejects archive URLs with unsupported schemes or missing hosts",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"transport"},
		Rego: `package fftwprov.policies.scheme

import rego.v1

supported := {"http", "https", "ftp", "sftp", "file"}

deny contains violation if {
	not supported[input.source.scheme]
	violation := {
		"message": sprintf("unsupported archive URL scheme %q in %s", [input.source.scheme, input.source.url]),
		"severity": "error",
	}
}

deny contains violation if {
	supported[input.source.scheme]
	input.source.scheme != "file"
	input.source.host == ""
	violation := {
		"message": sprintf("archive URL %s has no host", [input.source.url]),
		"severity": "error",
	}
}
`,
	}
}
