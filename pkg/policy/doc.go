// Package policy gates archive sources with Open Policy Agent (OPA) Rego policies.
//
// Before anything is downloaded, the provisioner builds an Input describing the
// platform, the archive URL and the configured checksum, and evaluates every
// enabled policy against it. A violation with severity error or critical aborts
// the run; info and warning violations are logged.
//
// # Usage
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//
//	result, err := engine.Evaluate(ctx, &policy.Input{
//	    Platform: "unix",
//	    Source:   policy.NewSourceInput("http://www.fftw.org/fftw-3.3.6-pl1.tar.gz"),
//	    Checksum: policy.ChecksumInput{Algorithm: "md5", Present: true},
//	})
//	if err != nil {
//	    return err
//	}
//	for _, v := range result.Blocking() {
//	    fmt.Printf("%s: %s\n", v.Policy, v.Message)
//	}
//
// # Built-in Policies
//
//   - source-integrity: a Unix tarball must carry a checksum. A Windows archive
//     without one is a warning, or an error in strict mode.
//   - source-transport: reports archives fetched over plain http or ftp.
//   - source-scheme: rejects schemes no fetcher serves and URLs without a host.
//
// # Custom Policies
//
// Extra .rego or .json files are loaded with Engine.LoadPolicies. A Rego policy
// defines a "deny" set whose elements are strings or objects with message,
// severity and remediation keys:
//
//	package fftwprov.custom.mirror
//
//	import rego.v1
//
//	deny contains violation if {
//	    input.source.host != "mirror.internal"
//	    violation := {"message": "archives must come from the internal mirror", "severity": "error"}
//	}
//
// A policy file loaded this way replaces any policy with the same name.
package policy
