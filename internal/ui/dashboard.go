package ui

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>quizmock - Debug Panel</title>
    <script src="https://cdn.tailwindcss.com"></script>
    <script src="https://code.jquery.com/jquery-3.7.1.min.js"></script>
</head>
<body class="bg-gray-100">
    <div class="container mx-auto px-4 py-8">
        <div class="bg-white rounded-lg shadow-md p-6 mb-6">
            <div class="flex justify-between items-center">
                <div>
                    <h1 class="text-3xl font-bold text-gray-800">quizmock</h1>
                    <p class="text-gray-600 mt-1">Mock Debug Panel</p>
                </div>
                <div class="flex gap-4">
                    <div class="text-right">
                        <div class="text-2xl font-bold text-blue-600" id="total-requests">0</div>
                        <div class="text-sm text-gray-600">Requests</div>
                    </div>
                    <div class="text-right">
                        <div class="text-2xl font-bold text-green-600" id="mocked-requests">0</div>
                        <div class="text-sm text-gray-600">Mocked</div>
                    </div>
                    <div class="text-right">
                        <div class="text-2xl font-bold text-red-600" id="error-requests">0</div>
                        <div class="text-sm text-gray-600">Errors</div>
                    </div>
                </div>
            </div>
            <div class="mt-4 flex flex-wrap items-center gap-2">
                <span id="status-badge" class="text-xs font-semibold px-2.5 py-0.5 rounded bg-gray-100 text-gray-800">UNKNOWN</span>
                <select id="mode-select" class="border rounded py-2 px-2"></select>
                <button id="toggle-btn" class="bg-blue-500 hover:bg-blue-700 text-white font-bold py-2 px-4 rounded">Enable</button>
                <button id="debug-btn" class="bg-gray-500 hover:bg-gray-700 text-white font-bold py-2 px-4 rounded">Toggle Debug Logging</button>
                <button id="refresh-btn" class="bg-blue-500 hover:bg-blue-700 text-white font-bold py-2 px-4 rounded">Refresh Now</button>
                <button id="clear-btn" class="bg-red-500 hover:bg-red-700 text-white font-bold py-2 px-4 rounded">Clear Log</button>
                <button id="reset-btn" class="bg-red-700 hover:bg-red-900 text-white font-bold py-2 px-4 rounded">Reset</button>
                <label class="flex items-center ml-4">
                    <input type="checkbox" id="auto-refresh" checked class="mr-2">
                    <span class="text-gray-700">Auto-refresh (2s)</span>
                </label>
            </div>
        </div>
        <div class="bg-white rounded-lg shadow-md p-6">
            <h2 class="text-xl font-bold text-gray-800 mb-4">Intercepted Requests</h2>
            <div id="requests-container"><p class="text-gray-500 text-center py-8">Loading requests...</p></div>
        </div>
    </div>
    <script>
        const API = '{{.APIBase}}';
        let autoRefreshInterval = null;
        let enabled = false;

        function call(method, path, body) {
            return $.ajax({
                url: API + path,
                method: method,
                contentType: 'application/json',
                data: body === undefined ? undefined : JSON.stringify(body)
            });
        }
        function fetchStatus() {
            call('GET', '/status').done(function(s) {
                enabled = s.enabled;
                const badge = s.started ? 'ACTIVE: ' + s.mode : (s.enabled ? 'STOPPED' : 'DISABLED');
                $('#status-badge').text(badge)
                    .toggleClass('bg-green-100 text-green-800', s.started)
                    .toggleClass('bg-gray-100 text-gray-800', !s.started);
                $('#toggle-btn').text(s.enabled ? 'Disable' : 'Enable');
            });
            call('GET', '/mode').done(function(m) {
                const select = $('#mode-select');
                select.empty();
                (m.modes || [m.mode]).forEach(function(name) {
                    select.append($('<option>').val(name).text(name).prop('selected', name === m.mode));
                });
            });
        }
        function fetchRequests() {
            call('GET', '/requests').done(function(data) {
                renderRequests(data);
                updateStats(data);
            }).fail(function() {
                $('#requests-container').html('<p class="text-red-500 text-center py-8">Failed to load requests</p>');
            });
        }
        function refresh() {
            fetchStatus();
            fetchRequests();
        }
        function updateStats(requests) {
            $('#total-requests').text(requests.length);
            $('#mocked-requests').text(requests.filter(r => r.mocked).length);
            $('#error-requests').text(requests.filter(r => r.status >= 400).length);
        }
        function renderRequests(requests) {
            if (requests.length === 0) {
                $('#requests-container').html('<p class="text-gray-500 text-center py-8">No requests yet</p>');
                return;
            }
            let html = '';
            requests.slice().reverse().forEach(function(req) {
                const statusClass = req.status >= 200 && req.status < 300 ? 'text-green-600' :
                                   req.status >= 400 ? 'text-red-600' : 'text-yellow-600';
                const borderClass = req.status >= 400 ? 'border-red-500' : 'border-green-500';
                html += '<div class="border-l-4 ' + borderClass + ' bg-gray-50 p-4 mb-4 rounded">';
                html += '  <div class="flex justify-between items-start">';
                html += '    <div class="flex items-center gap-2">';
                html += '      <span class="font-bold text-lg">' + escapeHtml(req.method) + '</span>';
                html += '      <span class="text-gray-700">' + escapeHtml(req.url) + '</span>';
                if (req.service) {
                    html += '      <span class="bg-blue-100 text-blue-800 text-xs font-semibold px-2.5 py-0.5 rounded">' + escapeHtml(req.service) + '</span>';
                }
                html += '    </div>';
                html += '    <div class="text-right text-sm text-gray-600">' + new Date(req.timestamp).toLocaleString() + '</div>';
                html += '  </div>';
                html += '  <div class="text-sm mt-1"><span class="text-gray-600">Status: </span>';
                html += '    <span class="font-semibold ' + statusClass + '">' + req.status + '</span>';
                if (req.outcome) {
                    html += '    <span class="text-gray-500 ml-2">(' + escapeHtml(req.outcome) + ')</span>';
                }
                html += '  </div>';
                html += '</div>';
            });
            $('#requests-container').html(html);
        }
        function escapeHtml(text) {
            if (!text) return '';
            return $('<div>').text(text.toString()).html();
        }
        function updateAutoRefresh() {
            if ($('#auto-refresh').is(':checked')) {
                if (!autoRefreshInterval) {
                    autoRefreshInterval = setInterval(refresh, 2000);
                }
            } else if (autoRefreshInterval) {
                clearInterval(autoRefreshInterval);
                autoRefreshInterval = null;
            }
        }
        $(document).ready(function() {
            $('#refresh-btn').click(refresh);
            $('#clear-btn').click(function() {
                if (confirm('Clear the request log?')) {
                    call('DELETE', '/requests').always(refresh);
                }
            });
            $('#toggle-btn').click(function() {
                call('POST', enabled ? '/disable' : '/enable').always(refresh);
            });
            $('#mode-select').change(function() {
                call('PUT', '/mode', {mode: $(this).val()}).fail(function(xhr) {
                    alert('Failed to switch mode: ' + xhr.responseText);
                }).always(refresh);
            });
            $('#debug-btn').click(function() {
                call('PUT', '/debug').always(refresh);
            });
            $('#reset-btn').click(function() {
                if (confirm('Drop saved settings and the request log?')) {
                    call('POST', '/reset').always(refresh);
                }
            });
            $('#auto-refresh').change(updateAutoRefresh);
            refresh();
            updateAutoRefresh();
        });
    </script>
</body>
</html>
`
