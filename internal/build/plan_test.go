package build

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codex-k8s/buildctl/internal/toolchain"
)

var gcc = toolchain.Toolchain{Name: "gcc", Generator: "Unix Makefiles"}

func TestTag(t *testing.T) {
	assert.Equal(t, "gcc", Tag("gcc", ""))
	assert.Equal(t, "gcc-Release", Tag("gcc", "Release"))
}

func TestPlanDirectoriesAndCommands(t *testing.T) {
	p, err := NewPlan(Options{
		Toolchain:     gcc,
		Config:        "Release",
		WorkDir:       "/work",
		ToolchainsDir: "/polly",
		Test:          true,
		Pack:          "TGZ",
		Install:       true,
		Fwd:           []string{"FOO=1", "BAR=ON"},
		Jobs:          4,
	})
	require.NoError(t, err)

	assert.Equal(t, "gcc-Release", p.Tag)
	assert.Equal(t, filepath.Join("/work", "build", "gcc-Release"), p.BuildDir)
	assert.Equal(t, filepath.Join("/work", "_install", "gcc"), p.InstallDir)
	assert.Equal(t, filepath.Join(p.BuildDir, "logs"), p.TempDir)
	assert.Equal(t, filepath.Join("/work", "build", ".gcc-Release.lock"), p.LockPath)
	assert.True(t, p.RunBuild)
	assert.True(t, p.RunTest)
	assert.True(t, p.RunPack)

	assert.Equal(t, []string{
		"cmake",
		"-H/work",
		"-B" + p.BuildDir,
		"-DCMAKE_BUILD_TYPE=Release",
		"-GUnix Makefiles",
		"-DCMAKE_TOOLCHAIN_FILE=" + filepath.Join("/polly", "gcc.cmake"),
		"-DCMAKE_VERBOSE_MAKEFILE=ON",
		"-DCMAKE_INSTALL_PREFIX=" + p.InstallDir,
		"-DCPACK_GENERATOR=TGZ",
		"-DFOO=1",
		"-DBAR=ON",
	}, p.Generate)
	assert.Equal(t, []string{"cmake", "--build", p.BuildDir, "--config", "Release", "--target", "install", "--", "-j", "4"}, p.Build)
	assert.Equal(t, []string{"ctest", "-C", "Release", "--output-on-failure", "-j", "4"}, p.Test)
	assert.Equal(t, []string{"cpack", "-C", "Release", "--verbose", "-GTGZ"}, p.Pack)
}

func TestPlanMinimal(t *testing.T) {
	p, err := NewPlan(Options{Toolchain: gcc, WorkDir: "/work", ToolchainsDir: "/polly", Home: "src"})
	require.NoError(t, err)

	assert.Equal(t, "gcc", p.Tag)
	assert.Equal(t, filepath.Join("/work", "src"), p.Home)
	assert.Equal(t, []string{"cmake", "--build", p.BuildDir, "--"}, p.Build)
	assert.NotContains(t, p.Generate, "-DCMAKE_INSTALL_PREFIX="+p.InstallDir)
	assert.False(t, p.RunTest)
	assert.False(t, p.RunPack)
}

func TestPlanStrip(t *testing.T) {
	p, err := NewPlan(Options{Toolchain: gcc, WorkDir: "/work", Strip: true})
	require.NoError(t, err)
	assert.True(t, p.LocalInstall)
	assert.Contains(t, p.Build, "install/strip")
	assert.Contains(t, p.Generate, "-DCMAKE_INSTALL_PREFIX="+p.InstallDir)

	ninja := toolchain.Toolchain{Name: "ninja", Generator: "Ninja"}
	_, err = NewPlan(Options{Toolchain: ninja, WorkDir: "/work", Strip: true})
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
	assert.Contains(t, err.Error(), "only supported for the Unix Makefile generator")
}

func TestPlanJobsOnlyForMake(t *testing.T) {
	ninja := toolchain.Toolchain{Name: "ninja", Generator: "Ninja"}
	p, err := NewPlan(Options{Toolchain: ninja, WorkDir: "/work", Jobs: 8})
	require.NoError(t, err)
	assert.Equal(t, "--", p.Build[len(p.Build)-1])
}

func TestPlanVisualStudioPlatform(t *testing.T) {
	vs := toolchain.Toolchain{Name: "vs-17-2022-x64", Generator: "Visual Studio 17 2022", Arch: toolchain.ArchAMD64}
	p, err := NewPlan(Options{Toolchain: vs, WorkDir: `C:\work`, Config: "Debug"})
	require.NoError(t, err)
	assert.Contains(t, p.Generate, "-Ax64")
	assert.Contains(t, p.Generate, "-GVisual Studio 17 2022")
}

func TestPlanNoBuildSkipsTestAndPack(t *testing.T) {
	p, err := NewPlan(Options{Toolchain: gcc, WorkDir: "/work", NoBuild: true, Test: true, Pack: "TGZ"})
	require.NoError(t, err)
	assert.False(t, p.RunBuild)
	assert.False(t, p.RunTest)
	assert.False(t, p.RunPack)
}

func TestPlanTestXML(t *testing.T) {
	p, err := NewPlan(Options{Toolchain: gcc, WorkDir: "/work", TestXML: "out/tests.xml"})
	require.NoError(t, err)
	assert.True(t, p.RunTest)
	assert.Equal(t, filepath.Join("/work", "out", "tests.xml"), p.TestXML)
	assert.Equal(t, []string{"ctest", "--output-on-failure", "-T", "Test"}, p.Test)
}

func TestPlanRejectsBadInput(t *testing.T) {
	cases := map[string]Options{
		"no toolchain":  {WorkDir: "/work"},
		"no work dir":   {Toolchain: gcc},
		"negative jobs": {Toolchain: gcc, WorkDir: "/work", Jobs: -1},
		"fwd with -D":   {Toolchain: gcc, WorkDir: "/work", Fwd: []string{"-DFOO=1"}},
		"fwd no value":  {Toolchain: gcc, WorkDir: "/work", Fwd: []string{"FOO"}},
	}
	for name, opts := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewPlan(opts)
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
		})
	}
}
