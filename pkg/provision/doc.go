// Package provision ensures the FFTW libraries exist in a build output directory and
// tells the host build system how to link against them.
//
// On Unix the source tarball is downloaded, checked against its digest, expanded with
// tar and built twice (single then double precision) with configure, make and make
// install. On Windows a zip of prebuilt DLLs is downloaded, the DLL/DEF pairs are
// extracted and an import library is synthesised for each with lib.exe or llvm-lib.
//
// A run is idempotent: when every final artifact already exists nothing is fetched or
// executed. Failures are returned as *Error values carrying a class and the failing
// step; partially built trees are left on disk.
//
//	p := provision.New(opts, provision.Dependencies{Policy: engine, Store: ledger})
//	result, err := p.Ensure(ctx)
//	if err != nil {
//	    return err
//	}
//	return p.Emit(os.Stdout, provision.FormatCargo)
package provision
