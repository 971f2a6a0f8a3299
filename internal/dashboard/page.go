package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Fraudscope</title>
    <meta name="description" content="Real-time transaction fraud scoring">
    <style>
        * { margin: 0; padding: 0; box-sizing: border-box; }

        :root {
            --bg: #f8fafc;
            --card: #ffffff;
            --border: #e2e8f0;
            --text: #1e293b;
            --text-secondary: #64748b;
            --accent: #667eea;
            --green: #10b981;
            --amber: #f59e0b;
            --red: #ef4444;
        }

        body {
            font-family: -apple-system, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg);
            color: var(--text);
            font-size: 14px;
            line-height: 1.5;
        }

        header {
            background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
            color: #fff;
            padding: 24px 32px;
        }
        header h1 { font-size: 22px; font-weight: 600; }
        header p { opacity: 0.85; }

        nav { display: flex; gap: 8px; padding: 12px 32px; background: var(--card); border-bottom: 1px solid var(--border); }
        .nav-btn { border: 0; background: none; padding: 8px 14px; border-radius: 6px; cursor: pointer; color: var(--text-secondary); font-size: 14px; }
        .nav-btn.active { background: var(--accent); color: #fff; }

        main { max-width: 1200px; margin: 0 auto; padding: 24px 32px; }
        .tab-content { display: none; }
        .tab-content.active { display: block; }

        .stats-grid { display: grid; grid-template-columns: repeat(4, 1fr); gap: 16px; margin-bottom: 24px; }
        .stat-card { background: var(--card); border: 1px solid var(--border); border-radius: 10px; padding: 18px; }
        .stat-value { font-size: 26px; font-weight: 700; color: var(--accent); font-variant-numeric: tabular-nums; }
        .stat-label { color: var(--text-secondary); font-size: 13px; }

        .panel { background: var(--card); border: 1px solid var(--border); border-radius: 10px; padding: 20px; margin-bottom: 20px; }
        .panel h2 { font-size: 16px; margin-bottom: 14px; }
        .layout { display: grid; grid-template-columns: 1fr 1fr; gap: 20px; }

        form .row { display: grid; grid-template-columns: 1fr 1fr; gap: 12px; margin-bottom: 12px; }
        label { display: block; font-size: 12px; color: var(--text-secondary); margin-bottom: 4px; }
        input, select { width: 100%; padding: 8px 10px; border: 1px solid var(--border); border-radius: 6px; font-size: 14px; }
        #analyze-btn { width: 100%; padding: 10px; border: 0; border-radius: 6px; background: var(--accent); color: #fff; font-size: 15px; cursor: pointer; }
        #analyze-btn:disabled { opacity: 0.6; cursor: wait; }
        .btn-loading { display: none; }

        #results-container { display: none; }
        #probability-circle { width: 140px; height: 140px; border-radius: 50%; margin: 0 auto 12px; display: flex; align-items: center; justify-content: center; background: #e2e8f0; }
        #probability-text { background: var(--card); width: 108px; height: 108px; border-radius: 50%; display: flex; align-items: center; justify-content: center; font-size: 24px; font-weight: 700; }
        .risk-level { text-align: center; font-weight: 600; padding: 6px; border-radius: 6px; margin-bottom: 12px; }
        .confidence-bar { height: 8px; background: #e2e8f0; border-radius: 4px; overflow: hidden; }
        #confidence-fill { height: 100%; width: 0; background: var(--accent); transition: width 0.4s; }
        #recommendation-text { border-left: 4px solid var(--accent); padding: 10px 12px; margin: 12px 0; background: #f1f5f9; }
        .details { display: grid; grid-template-columns: auto 1fr; gap: 4px 12px; font-size: 13px; }
        .details dt { color: var(--text-secondary); }
        .source-tag { font-size: 12px; color: var(--text-secondary); text-align: center; }

        .charts-grid { display: grid; grid-template-columns: 1fr 1fr; gap: 20px; }
        .charts-grid img { width: 100%; height: auto; border-radius: 6px; }
        #rebuild-btn { float: right; border: 1px solid var(--border); background: var(--card); padding: 6px 12px; border-radius: 6px; cursor: pointer; }

        #feed { list-style: none; max-height: 360px; overflow-y: auto; }
        #feed li { display: grid; grid-template-columns: 1fr auto auto; gap: 12px; padding: 8px 0; border-bottom: 1px solid var(--border); font-size: 13px; }
        .level-Low { color: var(--green); }
        .level-Medium { color: var(--amber); }
        .level-High { color: var(--red); }

        @media (max-width: 900px) {
            .stats-grid { grid-template-columns: repeat(2, 1fr); }
            .layout, .charts-grid { grid-template-columns: 1fr; }
        }
    </style>
</head>
<body>
    <header>
        <h1>Fraudscope</h1>
        <p>Transaction fraud scoring</p>
    </header>

    <nav>
        <button class="nav-btn active" data-tab="predict">Predict</button>
        <button class="nav-btn" data-tab="analytics">Analytics</button>
        <button class="nav-btn" data-tab="activity">Activity</button>
    </nav>

    <main>
        <div class="stats-grid">
            <div class="stat-card"><div class="stat-value" data-label="Transactions Analyzed">0</div><div class="stat-label">Transactions Analyzed</div></div>
            <div class="stat-card"><div class="stat-value" data-label="Fraud Cases Detected">0</div><div class="stat-label">Fraud Cases Detected</div></div>
            <div class="stat-card"><div class="stat-value" data-label="False Alarms">0</div><div class="stat-label">False Alarms</div></div>
            <div class="stat-card"><div class="stat-value" data-label="Model Accuracy">0</div><div class="stat-label">Model Accuracy</div></div>
        </div>

        <section id="predict" class="tab-content active">
            <div class="layout">
                <div class="panel">
                    <h2>Transaction</h2>
                    <form id="fraud-form">
                        <div class="row">
                            <div><label for="step">Step</label><input id="step" name="step" type="number" min="0" value="1" required></div>
                            <div><label for="amount">Amount</label><input id="amount" name="amount" type="number" min="0" step="0.01" value="100" required></div>
                        </div>
                        <div class="row">
                            <div><label for="age">Age group</label>
                                <select id="age" name="age">
                                    <option value="0">0 (&le;18)</option><option value="1">1 (19-25)</option>
                                    <option value="2" selected>2 (26-35)</option><option value="3">3 (36-45)</option>
                                    <option value="4">4 (46-55)</option><option value="5">5 (56-65)</option>
                                    <option value="6">6 (&gt;65)</option><option value="U">Unknown</option>
                                </select>
                            </div>
                            <div><label for="gender">Gender</label>
                                <select id="gender" name="gender">
                                    <option value="F">Female</option><option value="M">Male</option>
                                    <option value="E">Enterprise</option><option value="U">Unknown</option>
                                </select>
                            </div>
                        </div>
                        <div class="row">
                            <div><label for="merchant">Merchant</label><select id="merchant" name="merchant"></select></div>
                            <div><label for="category">Category</label><select id="category" name="category"></select></div>
                        </div>
                        <button type="submit" id="analyze-btn"><span class="btn-text">Analyze</span><span class="btn-loading">Analyzing...</span></button>
                    </form>
                </div>

                <div class="panel">
                    <h2>Result</h2>
                    <div id="results-container">
                        <div id="probability-circle"><div id="probability-text">0%</div></div>
                        <div id="risk-level" class="risk-level"></div>
                        <div class="confidence-bar"><div id="confidence-fill"></div></div>
                        <div id="confidence-text"></div>
                        <div id="recommendation-text"></div>
                        <dl class="details">
                            <dt>Transaction</dt><dd id="transaction-id"></dd>
                            <dt>Time</dt><dd id="timestamp"></dd>
                            <dt>Model</dt><dd id="model-version"></dd>
                        </dl>
                        <div id="source" class="source-tag"></div>
                    </div>
                </div>
            </div>
        </section>

        <section id="analytics" class="tab-content">
            <div class="panel">
                <button id="rebuild-btn">Rebuild charts</button>
                <h2>Model analytics</h2>
                <div class="charts-grid">
                    <img id="metricsChart" data-chart="metrics" alt="Model performance">
                    <img id="riskChart" data-chart="risk" alt="Risk distribution">
                    <img id="featuresChart" data-chart="features" alt="Feature importance">
                    <img id="trendsChart" data-chart="trends" alt="Fraud trends">
                </div>
            </div>
        </section>

        <section id="activity" class="tab-content">
            <div class="panel">
                <h2>Live assessments</h2>
                <ul id="feed"></ul>
            </div>
        </section>
    </main>

    <script>
        function setupNavigation() {
            const buttons = document.querySelectorAll('.nav-btn');
            const tabs = document.querySelectorAll('.tab-content');
            buttons.forEach(btn => btn.addEventListener('click', () => {
                buttons.forEach(b => b.classList.remove('active'));
                tabs.forEach(t => t.classList.remove('active'));
                btn.classList.add('active');
                document.getElementById(btn.dataset.tab).classList.add('active');
                if (btn.dataset.tab === 'analytics') rebuildCharts();
            }));
        }

        async function fillSelect(id, url, key) {
            const el = document.getElementById(id);
            try {
                const res = await fetch(url);
                const data = await res.json();
                (data[key] || []).forEach(v => {
                    const opt = document.createElement('option');
                    opt.value = v;
                    opt.textContent = v;
                    el.appendChild(opt);
                });
            } catch (e) {
                console.error('failed to load ' + key, e);
            }
        }

        function setupForm() {
            const form = document.getElementById('fraud-form');
            const btn = document.getElementById('analyze-btn');
            form.addEventListener('submit', async (e) => {
                e.preventDefault();
                btn.disabled = true;
                btn.querySelector('.btn-text').style.display = 'none';
                btn.querySelector('.btn-loading').style.display = 'inline';

                const fd = new FormData(form);
                const body = {
                    step: parseInt(fd.get('step'), 10),
                    amount: parseFloat(fd.get('amount')),
                    age: fd.get('age'),
                    gender: fd.get('gender'),
                    merchant: fd.get('merchant'),
                    category: fd.get('category')
                };
                try {
                    const res = await fetch('/api/assess', {
                        method: 'POST',
                        headers: { 'Content-Type': 'application/json' },
                        body: JSON.stringify(body)
                    });
                    displayResults(await res.json());
                } catch (err) {
                    alert('Error: ' + err.message);
                } finally {
                    btn.disabled = false;
                    btn.querySelector('.btn-text').style.display = 'inline';
                    btn.querySelector('.btn-loading').style.display = 'none';
                }
            });
        }

        function displayResults(r) {
            if (!r.success) {
                alert('Error: ' + r.error);
                return;
            }
            const angle = (r.fraud_probability / 100) * 360;
            document.getElementById('probability-text').textContent = r.fraud_probability + '%';
            document.getElementById('probability-circle').style.background =
                'conic-gradient(' + r.risk_color + ' ' + angle + 'deg, #e2e8f0 ' + angle + 'deg)';

            const level = document.getElementById('risk-level');
            level.textContent = r.risk_level + ' Risk';
            level.style.backgroundColor = r.risk_color + '20';
            level.style.color = r.risk_color;

            document.getElementById('confidence-fill').style.width = r.confidence_score + '%';
            document.getElementById('confidence-text').textContent = 'Confidence: ' + r.confidence_score + '%';
            const rec = document.getElementById('recommendation-text');
            rec.textContent = r.recommendation;
            rec.style.borderLeftColor = r.risk_color;

            document.getElementById('transaction-id').textContent = r.transaction_id;
            document.getElementById('timestamp').textContent = new Date(r.timestamp).toLocaleString();
            document.getElementById('model-version').textContent = r.model_version;
            document.getElementById('source').textContent = r.source === 'remote'
                ? 'Scored by remote model'
                : 'Scored by local rules' + (r.fallback_reason ? ' (' + r.fallback_reason + ')' : '');
            document.getElementById('results-container').style.display = 'block';
        }

        function refreshCharts() {
            const bust = Date.now();
            document.querySelectorAll('img[data-chart]').forEach(img => {
                img.src = '/charts/' + img.dataset.chart + '.png?v=' + bust;
            });
        }

        async function rebuildCharts() {
            try {
                const res = await fetch('/api/charts/rebuild', { method: 'POST' });
                if (!res.ok) {
                    const data = await res.json().catch(() => ({}));
                    alert('Rebuild failed: ' + (data.message || res.status));
                    return;
                }
                refreshCharts();
            } catch (err) {
                console.error('chart rebuild failed', err);
            }
        }

        function setupRebuild() {
            document.getElementById('rebuild-btn').addEventListener('click', rebuildCharts);
        }

        function addFeedItem(a) {
            const feed = document.getElementById('feed');
            const li = document.createElement('li');
            const id = document.createElement('span');
            id.textContent = a.transaction_id + ' ' + a.merchant + ' $' + a.amount;
            const level = document.createElement('span');
            level.className = 'level-' + a.risk_level;
            level.textContent = a.risk_level + ' ' + a.fraud_probability + '%';
            const src = document.createElement('span');
            src.textContent = a.source;
            li.append(id, level, src);
            feed.prepend(li);
            while (feed.children.length > 50) feed.removeChild(feed.lastChild);
        }

        function connect() {
            const proto = location.protocol === 'https:' ? 'wss:' : 'ws:';
            const ws = new WebSocket(proto + '//' + location.host + '/ws');
            ws.onmessage = (msg) => {
                const e = JSON.parse(msg.data);
                switch (e.type) {
                case 'stat': {
                    const el = document.querySelector('.stat-value[data-label="' + e.data.label + '"]');
                    if (el) el.textContent = e.data.text;
                    break;
                }
                case 'assessment':
                    addFeedItem(e.data);
                    break;
                case 'charts_rebuilt':
                    refreshCharts();
                    break;
                }
            };
            ws.onclose = () => setTimeout(connect, 3000);
        }

        setupNavigation();
        setupForm();
        setupRebuild();
        fillSelect('merchant', '/api/merchants', 'merchants');
        fillSelect('category', '/api/categories', 'categories');
        refreshCharts();
        connect();
    </script>
</body>
</html>`

// Page serves the dashboard.
func (h *Handler) Page(c *gin.Context) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, pageHTML)
}
