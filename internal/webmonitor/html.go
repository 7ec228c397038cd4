package webmonitor

const indexHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Live Fish Detection</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <link rel="stylesheet" href="/assets/monitor.css">
</head>
<body>
    <div class="app">
        <div class="header">
            <div class="title">Live Fish Detection</div>
            <span class="badge" id="status-badge">Connecting...</span>
        </div>

        <div class="grid">
            <div class="panel wide">
                <h2>Live Feed</h2>
                <p class="panel-subtitle">Annotated MJPEG stream</p>
                <img id="stream" src="/video_feed" alt="Live fish stream">
            </div>

            <div class="panel">
                <h2>Current Detections</h2>
                <div class="stat-grid">
                    <div class="stat">
                        <span class="stat-label">In frame</span>
                        <span class="stat-value" id="total">0</span>
                    </div>
                    <div class="stat">
                        <span class="stat-label">Latest</span>
                        <span class="stat-value" id="latest">N/A</span>
                    </div>
                </div>
                <ul class="list" id="current-list"></ul>
            </div>

            <div class="panel">
                <h2>Species Seen</h2>
                <ul class="list" id="history-list"><li class="muted">Nothing detected yet.</li></ul>
            </div>

            <div class="panel">
                <h2>Recording</h2>
                <button id="record-btn" class="btn">Record</button>
                <div id="record-info" class="muted"></div>
            </div>
        </div>
    </div>

    <script>
        const badge = document.getElementById('status-badge');
        const total = document.getElementById('total');
        const latest = document.getElementById('latest');
        const currentList = document.getElementById('current-list');
        const historyList = document.getElementById('history-list');
        const recordBtn = document.getElementById('record-btn');
        const recordInfo = document.getElementById('record-info');
        const seen = new Map();
        let errorTimer = null;

        function renderList(el, items, fmt) {
            el.innerHTML = '';
            for (const item of items) {
                const li = document.createElement('li');
                li.textContent = fmt(item);
                el.appendChild(li);
            }
        }

        async function poll() {
            try {
                const res = await fetch('/detections');
                const data = await res.json();
                const dets = data.detections || [];
                clearTimeout(errorTimer);
                badge.textContent = data.ready ? 'Live' : 'Warming up';
                badge.className = data.ready ? 'badge ok' : 'badge';
                total.textContent = dets.length;
                latest.textContent = dets.length ? dets[0].class_name : 'N/A';
                renderList(currentList, dets, d => d.class_name + ' ' + Math.round(d.confidence * 100) + '%');

                for (const d of dets) {
                    if (!seen.has(d.class_name)) {
                        seen.set(d.class_name, { ...d, at: new Date().toLocaleTimeString() });
                    }
                }
                if (seen.size) {
                    renderList(historyList, Array.from(seen.values()).slice(-50), d => d.class_name + ' (' + d.at + ')');
                }
            } catch (e) {
                errorTimer = setTimeout(() => {
                    badge.textContent = 'Disconnected';
                    badge.className = 'badge err';
                }, 3000);
            }
        }

        async function refreshRecording() {
            const res = await fetch('/api/recording/status');
            const st = await res.json();
            recordBtn.textContent = st.recording ? 'Stop' : 'Record';
            recordInfo.textContent = st.recording
                ? st.frame_count + ' frames, ' + Math.round(st.bytes_written / 1024) + ' KB'
                : (st.filename || '');
        }

        recordBtn.addEventListener('click', async () => {
            const st = await (await fetch('/api/recording/status')).json();
            await fetch(st.recording ? '/api/recording/stop' : '/api/recording/start', { method: 'POST' });
            refreshRecording();
        });

        poll();
        refreshRecording();
        setInterval(poll, 1500);
        setInterval(refreshRecording, 2000);
    </script>
</body>
</html>
`

const monitorCSS = `body {
    margin: 0;
    font-family: system-ui, sans-serif;
    background: #01161e;
    color: #e6f7ff;
}
.app { max-width: 1200px; margin: 0 auto; padding: 16px; }
.header { display: flex; justify-content: space-between; align-items: center; margin-bottom: 16px; }
.title { font-size: 28px; font-weight: 700; color: #67e8f9; }
.badge { padding: 4px 10px; border-radius: 12px; background: #334155; font-size: 13px; }
.badge.ok { background: #15803d; }
.badge.err { background: #b91c1c; }
.grid { display: grid; grid-template-columns: 2fr 1fr; gap: 16px; }
.panel { background: #0b2530; border-radius: 10px; padding: 14px; }
.panel.wide { grid-row: span 3; }
.panel h2 { margin: 0 0 6px; font-size: 18px; }
.panel-subtitle { margin: 0 0 10px; color: #94a3b8; font-size: 13px; }
#stream { width: 100%; height: auto; background: #000; border-radius: 6px; }
.stat-grid { display: grid; grid-template-columns: 1fr 1fr; gap: 10px; }
.stat { background: #123744; padding: 8px; border-radius: 6px; }
.stat-label { display: block; color: #94a3b8; font-size: 12px; }
.stat-value { font-size: 22px; font-weight: 600; }
.list { list-style: none; padding: 0; margin: 10px 0 0; }
.list li { padding: 4px 0; border-bottom: 1px solid #123744; }
.muted { color: #64748b; }
.btn { background: #0891b2; color: #fff; border: 0; border-radius: 6px; padding: 8px 16px; cursor: pointer; }
@media (max-width: 800px) { .grid { grid-template-columns: 1fr; } .panel.wide { grid-row: auto; } }
`
