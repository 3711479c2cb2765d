package api

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>eqlproxy</title>
<style>
*,*::before,*::after{box-sizing:border-box;margin:0;padding:0}
:root{
  --bg:#0f1117;--bg-card:#161b22;--bg-card-hover:#1c2129;
  --border:#30363d;--text:#e1e4e8;--text-muted:#8b949e;--text-dim:#484f58;
  --primary:#58a6ff;--green:#3fb950;--red:#f85149;--radius:8px;--radius-sm:4px;
}
body{font-family:-apple-system,BlinkMacSystemFont,"Segoe UI",Helvetica,Arial,sans-serif;background:var(--bg);color:var(--text);line-height:1.5;min-height:100vh}
a{color:var(--primary);text-decoration:none}
button{cursor:pointer;font-family:inherit;font-size:inherit}
.container{max-width:1100px;margin:0 auto;padding:0 24px 48px}
header{background:var(--bg-card);border-bottom:1px solid var(--border);padding:12px 24px;position:sticky;top:0}
.header-inner{max-width:1100px;margin:0 auto;display:flex;align-items:center;gap:16px}
.header-title{font-size:20px;font-weight:700}
.badge{display:inline-flex;align-items:center;gap:4px;padding:2px 10px;border-radius:12px;font-size:12px;font-weight:600;border:1px solid var(--border);margin-left:auto}
.badge-healthy{color:var(--green);border-color:var(--green)}
.badge-unhealthy{color:var(--red);border-color:var(--red)}
.dot{width:8px;height:8px;border-radius:50%;display:inline-block}
.dot-green{background:var(--green)}.dot-red{background:var(--red)}.dot-gray{background:var(--text-dim)}
.summary{display:grid;grid-template-columns:repeat(4,1fr);gap:16px;margin:24px 0}
.card{background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);padding:20px}
.card-label{font-size:12px;text-transform:uppercase;letter-spacing:.5px;color:var(--text-muted);margin-bottom:4px}
.card-value{font-size:28px;font-weight:700;line-height:1.2}
h2{font-size:16px;margin:24px 0 12px}
.table-wrap{background:var(--bg-card);border:1px solid var(--border);border-radius:var(--radius);overflow:auto}
table{width:100%;border-collapse:collapse;font-size:14px}
th{text-align:left;padding:10px 14px;font-weight:600;color:var(--text-muted);border-bottom:1px solid var(--border);font-size:12px;text-transform:uppercase;letter-spacing:.5px}
td{padding:8px 14px;border-bottom:1px solid var(--border)}
tbody tr:last-child td{border-bottom:none}
.pill{display:inline-flex;padding:1px 8px;border-radius:10px;font-size:11px;font-weight:600}
.pill-enc{color:var(--primary);background:rgba(88,166,255,.12)}
.pill-native{color:var(--text-muted);background:rgba(139,148,158,.12)}
.btn{display:inline-flex;align-items:center;gap:6px;padding:8px 16px;border-radius:var(--radius);font-size:14px;font-weight:500;border:1px solid var(--border);background:var(--bg-card);color:var(--text)}
.btn:hover{background:var(--bg-card-hover)}
.toolbar{display:flex;align-items:center;margin-bottom:4px}
.empty-state{text-align:center;padding:40px;color:var(--text-muted)}
@media(max-width:700px){.summary{grid-template-columns:1fr 1fr}}
</style>
</head>
<body>
<header>
  <div class="header-inner">
    <div class="header-title">eqlproxy</div>
    <span id="health-badge" class="badge">checking…</span>
  </div>
</header>
<div class="container">
  <div class="summary" id="summary"></div>
  <div class="toolbar">
    <h2>Encrypted columns</h2>
    <span style="flex:1"></span>
    <button class="btn" id="reload-btn">Reload schema</button>
  </div>
  <div class="table-wrap">
    <table>
      <thead><tr><th>Table</th><th>Column</th><th>Cast type</th><th>Indexes</th></tr></thead>
      <tbody id="schema-body"></tbody>
    </table>
  </div>
</div>
<script>
function esc(s){return String(s).replace(/[&<>"']/g, function(c){return {"&":"&amp;","<":"&lt;",">":"&gt;","\"":"&quot;","'":"&#39;"}[c];});}

function fetchStatus(){
  fetch('/status').then(function(r){return r.json();}).then(function(s){
    var badge = document.getElementById('health-badge');
    if (s.upstream_healthy) {
      badge.className = 'badge badge-healthy';
      badge.innerHTML = '<span class="dot dot-green"></span> upstream healthy';
    } else {
      badge.className = 'badge badge-unhealthy';
      badge.innerHTML = '<span class="dot dot-red"></span> upstream unhealthy';
    }
    var summary = document.getElementById('summary');
    summary.innerHTML =
      '<div class="card"><div class="card-label">Uptime</div><div class="card-value">' + s.uptime_seconds + 's</div></div>' +
      '<div class="card"><div class="card-label">Active connections</div><div class="card-value">' + s.connections_active + '</div></div>' +
      '<div class="card"><div class="card-label">Goroutines</div><div class="card-value">' + s.goroutines + '</div></div>' +
      '<div class="card"><div class="card-label">Memory (MB)</div><div class="card-value">' + s.memory_mb.toFixed(1) + '</div></div>';
  }).catch(function(){});
}

function fetchSchema(){
  fetch('/schema').then(function(r){return r.json();}).then(function(tables){
    var rows = [];
    (tables || []).forEach(function(t){
      (t.columns || []).forEach(function(c){
        if (!c.encrypted) return;
        rows.push('<tr><td>' + esc(t.name) + '</td><td>' + esc(c.name) + '</td><td><span class="pill pill-enc">' + esc(c.cast_type) + '</span></td><td>' + esc((c.indexes||[]).join(', ')) + '</td></tr>');
      });
    });
    var body = document.getElementById('schema-body');
    body.innerHTML = rows.length ? rows.join('') : '<tr><td colspan="4"><div class="empty-state">No encrypted columns configured</div></td></tr>';
  }).catch(function(){});
}

document.getElementById('reload-btn').addEventListener('click', function(){
  fetch('/schema/reload', {method: 'POST'}).then(function(){
    fetchSchema();
  });
});

fetchStatus();
fetchSchema();
setInterval(fetchStatus, 5000);
setInterval(fetchSchema, 15000);
</script>
</body>
</html>
`
