package config

import "time"

const (
	// DefaultProjectPath is the default project path
	DefaultProjectPath = "."
	// DefaultTestPath is the default path handed to test discovery
	DefaultTestPath = "tests"
	// DefaultLogDir is where every per-module and aggregate report is written
	DefaultLogDir = "logs"
	// DefaultMaxReruns is how many times a failing module is rerun
	DefaultMaxReruns = 3
	// DefaultModuleTimeout bounds a single module attempt
	DefaultModuleTimeout = 3 * time.Hour
	// DefaultPython is the interpreter used for discovery and the default command
	DefaultPython = "python3"
	// DefaultDeviceEnvVar pins a subprocess to its accelerator
	DefaultDeviceEnvVar = "HIP_VISIBLE_DEVICES"
	// DefaultDiscovery is the discovery mode
	DefaultDiscovery = "pytest"
	// DefaultMetricsFile is the prometheus textfile name inside the log dir
	DefaultMetricsFile = "metrics.prom"
)

// DefaultCommand runs one module through pytest with JSON and HTML reporting
var DefaultCommand = []string{
	DefaultPython, "-m", "pytest",
	"--json-report",
	"--json-report-file={json_report}",
	"--html={html_report}",
	"{failfast}",
	"-v",
	"{module}",
}

// DefaultFailFastArgs replace the {failfast} token in fail-fast mode
var DefaultFailFastArgs = []string{"-x"}

// DefaultMergeTool merges per-module HTML reports
var DefaultMergeTool = []string{"pytest_html_merger"}

// DefaultEnv is passed through unchanged to every module subprocess
var DefaultEnv = map[string]string{
	"XLA_PYTHON_CLIENT_ALLOCATOR": "default",
	"HSA_TOOLS_LIB":               "libroctracer64.so",
}

// DefaultExcludedModules need several GPUs at once and are run elsewhere
var DefaultExcludedModules = []string{
	"tests/multiprocess_gpu_test.py",
	"tests/debug_info_test.py",
	"tests/checkify_test.py",
	"tests/mosaic/gpu_test.py",
	"tests/random_test.py",
	"tests/jax_jit_test.py",
	"tests/mesh_utils_test.py",
	"tests/pjit_test.py",
	"tests/linalg_sharding_test.py",
	"tests/multi_device_test.py",
	"tests/distributed_test.py",
	"tests/shard_alike_test.py",
	"tests/api_test.py",
	"tests/ragged_collective_test.py",
	"tests/batching_test.py",
	"tests/scaled_matmul_stablehlo_test.py",
	"tests/export_harnesses_multi_platform_test.py",
	"tests/pickle_test.py",
	"tests/roofline_test.py",
	"tests/profiler_test.py",
	"tests/error_check_test.py",
	"tests/debug_nans_test.py",
	"tests/shard_map_test.py",
	"tests/colocated_python_test.py",
	"tests/cudnn_fusion_test.py",
	"tests/compilation_cache_test.py",
	"tests/export_back_compat_test.py",
	"tests/pgle_test.py",
	"tests/ffi_test.py",
	"tests/lax_control_flow_test.py",
	"tests/fused_attention_stablehlo_test.py",
	"tests/layout_test.py",
	"tests/pmap_test.py",
	"tests/aot_test.py",
	"tests/mock_gpu_topology_test.py",
	"tests/ann_test.py",
	"tests/debugging_primitives_test.py",
	"tests/array_test.py",
	"tests/export_test.py",
	"tests/memories_test.py",
	"tests/debugger_test.py",
	"tests/python_callback_test.py",
}

// DefaultPathsToIgnore are the directories skipped by the filesystem scanner
var DefaultPathsToIgnore = []string{
	"__pycache__",
	"node_modules",
	"build",
	"dist",
	"site-packages",
}
