// SPDX-License-Identifier: Apache-2.0
// SPDX-FileCopyrightText: 2025 The Linux Foundation

package environment

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForBuildScriptBaseFields(t *testing.T) {
	env := ForBuildScript(BuildScriptRequest{
		OutDir:       "/target/debug/build/foo-abc/out",
		ManifestDir:  "/ws/foo",
		ManifestPath: "/ws/foo/Cargo.toml",
		NumJobs:      4,
		Target:       "x86_64-unknown-linux-gnu",
		Host:         "x86_64-unknown-linux-gnu",
		OptLevel:     "0",
		Rustc:        "/usr/bin/rustc",
		Rustdoc:      "/usr/bin/rustdoc",
	})

	require.Equal(t, "/target/debug/build/foo-abc/out", env["OUT_DIR"])
	require.Equal(t, "/ws/foo", env["CARGO_MANIFEST_DIR"])
	require.Equal(t, "4", env["NUM_JOBS"])
	require.Equal(t, "debug", env["PROFILE"])
	require.Equal(t, "true", env["DEBUG"])
	require.NotContains(t, env, "RUSTC_LINKER")
	require.NotContains(t, env, "CARGO_MANIFEST_LINKS")
}

func TestForBuildScriptRelease(t *testing.T) {
	env := ForBuildScript(BuildScriptRequest{Release: true, RustcLinker: "/usr/bin/cc", Links: "foo"})
	require.Equal(t, "release", env["PROFILE"])
	require.Equal(t, "false", env["DEBUG"])
	require.Equal(t, "/usr/bin/cc", env["RUSTC_LINKER"])
	require.Equal(t, "foo", env["CARGO_MANIFEST_LINKS"])
}

func TestForBuildScriptFeatures(t *testing.T) {
	env := ForBuildScript(BuildScriptRequest{Features: []string{"default", "tokio-runtime"}})
	require.Equal(t, "1", env["CARGO_FEATURE_DEFAULT"])
	require.Equal(t, "1", env["CARGO_FEATURE_TOKIO_RUNTIME"])
}

func TestForBuildScriptCfgsSuppressesDebugAssertions(t *testing.T) {
	env := ForBuildScript(BuildScriptRequest{Cfgs: []string{"unix", "debug_assertions", `target_os="linux"`}})
	require.NotContains(t, env, "CARGO_CFG_DEBUG_ASSERTIONS")
	_, ok := env["CARGO_CFG_UNIX"]
	require.True(t, ok)
	require.Equal(t, "", env["CARGO_CFG_UNIX"])
	require.Equal(t, "linux", env["CARGO_CFG_TARGET_OS"])
}

func TestForBuildScriptRustflagsEncoding(t *testing.T) {
	env := ForBuildScript(BuildScriptRequest{Rustflags: []string{"-C", "target-feature=+crt-static"}})
	require.Equal(t, "-C\x1ftarget-feature=+crt-static", env["CARGO_ENCODED_RUSTFLAGS"])
}

func TestForBuildScriptDepMetadataPropagation(t *testing.T) {
	env := ForBuildScript(BuildScriptRequest{
		DepMetadata: map[string]map[string]string{
			"openssl-sys": {"include": "/usr/include/openssl", "version": "3.0.0"},
		},
	})
	require.Equal(t, "/usr/include/openssl", env["DEP_OPENSSL_SYS_INCLUDE"])
	require.Equal(t, "3.0.0", env["DEP_OPENSSL_SYS_VERSION"])
}
